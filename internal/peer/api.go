package peer

import (
	"net"
	"strings"

	"github.com/ernestchu/christmas-tree/internal/config"
	"github.com/ernestchu/christmas-tree/internal/logging"
	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// NewAPI builds the pion API shared by every peer connection: default
// codecs and interceptors, with pion's own logs routed into log.
func NewAPI(log zerolog.Logger, level zerolog.Level) (*pion.API, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, newError("register codecs", "", err)
	}
	i := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, newError("register interceptors", "", err)
	}
	s := pion.SettingEngine{LoggerFactory: logging.NewPionLogger(log, level)}

	return pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
		pion.WithSettingEngine(s),
	), nil
}

// Configuration turns the client config into ICE settings. Relay-only
// transport is used when TURN is configured and either forced or the host
// looks like it sits behind a VPN or CGNAT.
func Configuration(cfg *config.Client) pion.Configuration {
	var servers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		servers = append(servers, pion.ICEServer{URLs: stun})
	}

	turn := cfg.GetTURNServers()
	if turn != nil {
		username, password := cfg.GetTURNCredentials()
		servers = append(servers, pion.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turn != nil && (cfg.ForceRelay || shouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: policy,
	}
}

// cgnat is 100.64.0.0/10, used by WARP, Tailscale and carrier NATs.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp"}

// shouldForceRelay reports whether an active interface looks like a tunnel
// or carries a CGNAT address. Direct paths rarely work from there.
func shouldForceRelay() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if looksLikeTunnel(iface.Name) {
			return true
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if n, ok := addr.(*net.IPNet); ok && cgnat.Contains(n.IP) {
				return true
			}
		}
	}
	return false
}

func looksLikeTunnel(name string) bool {
	name = strings.ToLower(name)
	for _, t := range tunnelNames {
		if strings.Contains(name, t) {
			return true
		}
	}
	return false
}
