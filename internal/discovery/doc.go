// Package discovery advertises and finds jitstub session monitors over mDNS.
//
// A "jitstub run" started with --advertise registers its monitor as a
// "_jitstub._tcp" service. The TXT records carry "app=jitstub", the build
// version and the attached pid. "jitstub discover" browses for that
// service type and lists what answers; "jitstub watch --instance" uses Find
// to resolve one monitor by name.
//
// # Usage Example
//
//	ad, err := discovery.Advertise("", mon.Port(), pid)
//	if err != nil {
//	    return err
//	}
//	defer ad.Shutdown()
//
//	monitors, err := discovery.NewScanner().Scan(ctx)
//
// Entries without the app tag are ignored, so other services sharing the
// type are never reported.
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Monitor and browser must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
