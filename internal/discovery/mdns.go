// ABOUTME: mDNS advertisement and browsing for remote-controllable players
// ABOUTME: Players advertise _resonate-media._tcp; the remote CLI browses for them
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/mdns"

	"github.com/Resonate-Protocol/resonate-media/internal/version"
)

// ServiceType is the DNS-SD service players advertise
const ServiceType = "_resonate-media._tcp"

// DefaultBrowseTimeout bounds one browse query
const DefaultBrowseTimeout = 3 * time.Second

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	logger  *log.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	players chan *PlayerInfo
}

// PlayerInfo describes a discovered player
type PlayerInfo struct {
	Name    string
	Host    string
	Port    int
	Path    string
	Version string
}

// Addr returns host:port
func (p *PlayerInfo) Addr() string {
	return net.JoinHostPort(p.Host, fmt.Sprint(p.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = "/control"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:  config,
		logger:  log.WithPrefix("discovery"),
		ctx:     ctx,
		cancel:  cancel,
		players: make(chan *PlayerInfo, 10),
	}
}

// txtRecords describes this player in the service's TXT records
func (m *Manager) txtRecords() []string {
	return []string{
		"path=" + m.config.Path,
		"version=" + version.Version,
		"product=" + version.Product,
	}
}

// Advertise announces this player until Stop is called
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(m.config.ServiceName, ServiceType, "", "", m.config.Port, ips, m.txtRecords())
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.logger.Info("Advertising mDNS service", "name", m.config.ServiceName, "port", m.config.Port, "type", ServiceType)

	go func() {
		<-m.ctx.Done()
		if err := server.Shutdown(); err != nil {
			m.logger.Warn("mdns shutdown failed", "err", err)
		}
	}()
	return nil
}

// Browse queries the network repeatedly until Stop, delivering players on Players
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}
		if err := m.query(DefaultBrowseTimeout); err != nil {
			m.logger.Warn("mdns query failed", "err", err)
			select {
			case <-m.ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (m *Manager) query(timeout time.Duration) error {
	entries := make(chan *mdns.ServiceEntry, 10)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			info := playerFromEntry(entry)
			if info == nil {
				continue
			}
			m.logger.Debug("discovered player", "name", info.Name, "addr", info.Addr())
			select {
			case m.players <- info:
			case <-m.ctx.Done():
			}
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	<-done
	return err
}

func playerFromEntry(entry *mdns.ServiceEntry) *PlayerInfo {
	if entry == nil || entry.AddrV4 == nil || !strings.Contains(entry.Name, ServiceType) {
		return nil
	}
	info := &PlayerInfo{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: "/control",
	}
	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "path":
			info.Path = value
		case "version":
			info.Version = value
		}
	}
	return info
}

// Players returns the channel of discovered players
func (m *Manager) Players() <-chan *PlayerInfo {
	return m.players
}

// Stop ends advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns non-loopback IPv4 addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
