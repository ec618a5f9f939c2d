package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

var errKeepAliveForm = errors.New("expected on, off or idle:interval:count")

// ParseKeepAlive parses a TCP keepalive setting: "on", "off", or
// "idle:interval:count" with idle and interval in whole seconds.
func ParseKeepAlive(s string) (net.KeepAliveConfig, error) {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "on":
		return net.KeepAliveConfig{Enable: true}, nil
	case "off":
		return net.KeepAliveConfig{}, nil
	}

	fields := strings.Split(s, ":")
	if len(fields) != 3 {
		return net.KeepAliveConfig{}, errKeepAliveForm
	}

	var n [3]int
	for i, name := range []string{"idle", "interval", "count"} {
		v, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			return net.KeepAliveConfig{}, fmt.Errorf("keepalive %s: %w", name, err)
		}
		if v <= 0 {
			return net.KeepAliveConfig{}, fmt.Errorf("keepalive %s: %d is not positive", name, v)
		}
		n[i] = v
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     time.Duration(n[0]) * time.Second,
		Interval: time.Duration(n[1]) * time.Second,
		Count:    n[2],
	}, nil
}
