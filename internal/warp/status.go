package warp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

// Status is the connection snapshot the panel renders.
type Status struct {
	Backend        string            `json:"backend"`
	Status         string            `json:"status"`
	IP             string            `json:"ip"`
	Location       string            `json:"location"`
	City           string            `json:"city"`
	Country        string            `json:"country"`
	ISP            string            `json:"isp"`
	WarpProtocol   string            `json:"warp_protocol"`
	WarpMode       string            `json:"warp_mode"`
	ConnectionTime string            `json:"connection_time"`
	NetworkType    string            `json:"network_type"`
	ProxyAddress   string            `json:"proxy_address"`
	Details        map[string]string `json:"details"`
}

const (
	statusCacheTTL = 2 * time.Second
	ipInfoCacheTTL = 2 * time.Minute
	ipFetchTimeout = 8 * time.Second
)

var ipInfoAPIs = []string{
	"http://ip-api.com/json/?fields=status,message,query,country,city,isp",
	"https://ipinfo.io/json",
	"https://ifconfig.me/all.json",
}

// ipInfo is the normalized egress address detail merged into Status.
type ipInfo struct {
	IP      string
	Country string
	City    string
	ISP     string
}

// statusCache keeps the last Status for a couple of seconds so panel polling
// and node-overview fanout don't hammer warp-cli.
type statusCache struct {
	mu      sync.Mutex
	status  *Status
	statusT time.Time

	ip  *ipInfo
	ipT time.Time
}

func (c *statusCache) cached() (*Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != nil && time.Since(c.statusT) < statusCacheTTL {
		s := *c.status
		return &s, true
	}
	return nil, false
}

func (c *statusCache) store(s *Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *s
	c.status = &copied
	c.statusT = time.Now()
}

func (c *statusCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = nil
	c.ip = nil
}

func (c *statusCache) cachedIPInfo() (*ipInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ip != nil && time.Since(c.ipT) < ipInfoCacheTTL {
		return c.ip, true
	}
	return nil, false
}

func (c *statusCache) storeIPInfo(info *ipInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ip = info
	c.ipT = time.Now()
}

// socksHTTPClient builds an HTTP client that dials through the local SOCKS5
// proxy, so the probe reports WARP's egress address rather than the host's.
func socksHTTPClient(socks5Port int) (*http.Client, error) {
	dialer, err := proxy.SOCKS5("tcp", fmt.Sprintf("127.0.0.1:%d", socks5Port), nil, proxy.Direct)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.Dial = dialer.Dial
	}

	return &http.Client{Transport: transport, Timeout: ipFetchTimeout}, nil
}

// fetchIPInfo queries the public IP APIs through the SOCKS5 proxy first and
// falls back to a direct connection (useful while socat is still coming up).
func fetchIPInfo(ctx context.Context, socks5Port int) *ipInfo {
	if client, err := socksHTTPClient(socks5Port); err == nil {
		if info := fetchFromAPIs(ctx, client); info != nil {
			return info
		}
	} else {
		log.Printf("⚠️  Failed to build SOCKS5 client (port %d): %v", socks5Port, err)
	}

	direct := &http.Client{Timeout: ipFetchTimeout}
	if info := fetchFromAPIs(ctx, direct); info != nil {
		log.Println("🌍 IP info fetched via direct connection")
		return info
	}
	return nil
}

func fetchFromAPIs(ctx context.Context, client *http.Client) *ipInfo {
	for _, api := range ipInfoAPIs {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, api, nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			log.Printf("⚠️  IP info fetch failed (%s): %v", api, err)
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			continue
		}

		var data map[string]any
		if err := json.Unmarshal(body, &data); err != nil {
			continue
		}
		if info := parseIPData(data, api); info != nil {
			return info
		}
	}
	return nil
}

func strField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func orUnknown(v string) string {
	if v == "" {
		return "Unknown"
	}
	return v
}

// parseIPData normalizes the differing response shapes of the IP APIs.
func parseIPData(data map[string]any, api string) *ipInfo {
	switch {
	case strings.Contains(api, "ip-api.com"):
		if strField(data, "status") != "success" {
			return nil
		}
		isp := strField(data, "isp")
		if isp == "" {
			isp = "Cloudflare WARP"
		}
		return &ipInfo{
			IP:      orUnknown(strField(data, "query")),
			Country: orUnknown(strField(data, "country")),
			City:    orUnknown(strField(data, "city")),
			ISP:     isp,
		}
	case strings.Contains(api, "ipinfo.io"):
		isp := strField(data, "org")
		if isp == "" {
			isp = "Cloudflare WARP"
		}
		return &ipInfo{
			IP:      orUnknown(strField(data, "ip")),
			Country: orUnknown(strField(data, "country")),
			City:    orUnknown(strField(data, "city")),
			ISP:     isp,
		}
	case strings.Contains(api, "ifconfig.me"):
		return &ipInfo{
			IP:      orUnknown(strField(data, "ip_addr")),
			Country: "Unknown",
			City:    "Unknown",
			ISP:     "Cloudflare WARP",
		}
	}
	return nil
}
