package ddns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// InterfaceResolver constructs a resolver that returns the first IPv4 address reported by the given interfaces.
// If no interfaces are provided then all interfaces will be used.
// Loopback addresses are always skipped.
//
// This is only useful on hosts that hold the public address directly, such as a router.
func InterfaceResolver(iface ...string) Resolver {
	if len(iface) == 0 {
		return localResolver{}
	}
	return interfaceResolver{ifaces: iface}
}

type interfaceResolver struct {
	ifaces []string
}

func (r interfaceResolver) Resolve(ctx context.Context) (string, error) {
	var errs []error
	for _, ifs := range r.ifaces {
		iface, err := net.InterfaceByName(ifs)
		if err != nil {
			errs = append(errs, fmt.Errorf("error getting interface %s by name: %w", ifs, err))
			continue
		}
		a, err := iface.Addrs()
		if err != nil {
			errs = append(errs, fmt.Errorf("error looking up addresses for interface %s: %w", ifs, err))
			continue
		}
		if ip, ok := firstIPv4(a); ok {
			return ip, nil
		}
	}
	if err := errors.Join(errs...); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no IPv4 address found on %v", r.ifaces)
}

type localResolver struct{}

func (r localResolver) Resolve(ctx context.Context) (string, error) {
	adds, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("error getting addresses for interface: %w", err)
	}
	if ip, ok := firstIPv4(adds); ok {
		return ip, nil
	}
	return "", errors.New("no IPv4 address found on any interface")
}

// addr: ip+net:192.168.86.253/24
// addr: ip+net:fe80::2cc9:801b:3551:9a43/64
func firstIPv4(addrs []net.Addr) (string, bool) {
	for _, addr := range addrs {
		p, err := netip.ParsePrefix(addr.String())
		if err != nil {
			continue
		}
		ip := p.Addr()
		if ip.IsLoopback() || !ip.Is4() {
			continue
		}
		return ip.String(), true
	}
	return "", false
}
