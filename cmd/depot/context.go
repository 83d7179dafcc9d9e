package main

import (
	"net"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"depot/internal/client"
	"depot/internal/config"
)

type commandContext struct {
	addressFlag *string
	configFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(addressFlag, configFlag *string) *commandContext {
	return &commandContext{
		addressFlag: addressFlag,
		configFlag:  configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// daemonAddress resolves the API base URL: the --address flag when set,
// otherwise the configured bind address with wildcard hosts rewritten
// to loopback.
func (c *commandContext) daemonAddress() string {
	if c.addressFlag != nil {
		if addr := strings.TrimSpace(*c.addressFlag); addr != "" {
			return normalizeAddress(addr)
		}
	}
	cfg, _ := c.ensureConfig()
	if cfg != nil {
		return bindToAddress(cfg.Server.Bind)
	}
	return "http://127.0.0.1:3000"
}

func (c *commandContext) apiClient() *client.Client {
	return client.New(c.daemonAddress())
}

func normalizeAddress(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}

// bindToAddress turns a listen address into something dialable. A
// daemon bound to 0.0.0.0 or :: answers on loopback.
func bindToAddress(bind string) string {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return "http://127.0.0.1:3000"
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return normalizeAddress(bind)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
