package transport

import (
	"fmt"
	"sort"
)

// Wire protocol names accepted by NewProtocolDialer. Framed TCP is
// always available; zmq and nng are compiled in with their matching
// build tags.
const (
	ProtocolTCP = "tcp"
	ProtocolZMQ = "zmq"
	ProtocolNNG = "nng"
)

// dialerBuilders maps protocol names to dialer constructors.
// Build-tagged transports add themselves in init.
var dialerBuilders = map[string]func(DialerConfig) ConnDialer{
	ProtocolTCP: func(config DialerConfig) ConnDialer { return NewDialer(config) },
}

// Protocols lists the wire protocols compiled into this build.
func Protocols() []string {
	names := make([]string, 0, len(dialerBuilders))
	for name := range dialerBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProtocolDialer builds a dialer for the named wire protocol.
// An empty name selects framed TCP.
func NewProtocolDialer(protocol string, config DialerConfig) (ConnDialer, error) {
	if protocol == "" {
		protocol = ProtocolTCP
	}
	build, ok := dialerBuilders[protocol]
	if !ok {
		return nil, fmt.Errorf("%w: %q (built with: %v)", ErrUnknownProtocol, protocol, Protocols())
	}
	return build(config), nil
}
