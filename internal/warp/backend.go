package warp

import (
	"context"
	"fmt"
	"time"
)

// Backend is the contract every WARP backend implementation exposes to the
// panel: the official Cloudflare client and the usque MASQUE client both
// satisfy it, as does the remote-node proxy on the panel side.
type Backend interface {
	// Name identifies the backend ("official" or "usque").
	Name() string

	// Mode reports the operating mode; both local backends run SOCKS5
	// proxy mode.
	Mode() string

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected(ctx context.Context) bool

	// Status returns the cached connection snapshot.
	Status(ctx context.Context) *Status
}

// base carries the pieces shared by both local backends.
type base struct {
	runner     Runner
	services   *serviceController
	socks5Port int
	cache      statusCache
}

func (b *base) proxyAddress() string {
	return fmt.Sprintf("socks5://127.0.0.1:%d", b.socks5Port)
}

// status assembles the common snapshot, filling egress IP details only when
// connected, with both layers of caching applied.
func (b *base) status(ctx context.Context, name, mode string, connected bool) *Status {
	s := &Status{
		Backend:        name,
		Status:         "disconnected",
		IP:             "Unknown",
		Location:       "Unknown",
		City:           "Unknown",
		Country:        "Unknown",
		ISP:            "Cloudflare WARP",
		WarpProtocol:   "MASQUE",
		WarpMode:       mode,
		ConnectionTime: "Unknown",
		NetworkType:    "Unknown",
		ProxyAddress:   b.proxyAddress(),
		Details:        map[string]string{},
	}
	if !connected {
		return s
	}
	s.Status = "connected"

	info, ok := b.cache.cachedIPInfo()
	if !ok {
		if fetched := fetchIPInfo(ctx, b.socks5Port); fetched != nil {
			b.cache.storeIPInfo(fetched)
			info = fetched
		}
	}
	if info != nil {
		s.IP = info.IP
		s.Country = info.Country
		s.City = info.City
		s.Location = info.Country
		s.ISP = info.ISP
		s.Details["isp"] = info.ISP
	}
	return s
}

// waitForState polls IsConnected until the desired state or timeout.
func waitForState(ctx context.Context, b Backend, wantConnected bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.IsConnected(ctx) == wantConnected {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
		}
	}
	return false
}
