// Package pools recycles byte buffers on the wire path.
//
// Every request and reply travels as a framed payload that lives only
// until the message is decoded. Pooling those buffers by size class
// keeps a busy client from allocating once per frame.
package pools
