package sources

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultPowerSupplyGlob matches Linux battery capacity files.
const DefaultPowerSupplyGlob = "/sys/class/power_supply/BAT*"

// LowBatteryPercent is the charge at or below which a discharging battery is low.
const LowBatteryPercent = 15

// SysfsBattery reads the charge level from a power_supply directory.
type SysfsBattery struct {
	// Dir is the power_supply directory. Empty means the first BAT* match.
	Dir string
}

func (b *SysfsBattery) dir() string {
	if b.Dir != "" {
		return b.Dir
	}
	matches, _ := filepath.Glob(DefaultPowerSupplyGlob)
	if len(matches) == 0 {
		return ""
	}
	return matches[0]
}

// BatteryLevel implements collect.BatteryReader. A machine without a battery
// reports (nil, nil).
func (b *SysfsBattery) BatteryLevel(context.Context) (*int, error) {
	dir := b.dir()
	if dir == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(filepath.Join(dir, "capacity"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	level, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse battery capacity: %w", err)
	}
	return &level, nil
}

// Low reports whether the battery is discharging at or below LowBatteryPercent.
// Unknown state is never low.
func (b *SysfsBattery) Low(ctx context.Context) bool {
	level, err := b.BatteryLevel(ctx)
	if err != nil || level == nil || *level > LowBatteryPercent {
		return false
	}
	status, err := os.ReadFile(filepath.Join(b.dir(), "status"))
	if err == nil && strings.TrimSpace(string(status)) == "Charging" {
		return false
	}
	return true
}

// NetworkProbe checks connectivity by dialing the host of an endpoint.
type NetworkProbe struct {
	Endpoint string
	Timeout  time.Duration
}

// Available reports whether a TCP connection to the endpoint succeeds.
func (p *NetworkProbe) Available(ctx context.Context) bool {
	u, err := url.Parse(p.Endpoint)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Host
	if u.Port() == "" {
		port := "443"
		if u.Scheme == "http" {
			port = "80"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
