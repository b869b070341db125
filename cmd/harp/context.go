package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"harp/internal/client"
	"harp/internal/config"
)

type commandContext struct {
	configFlag *string
	apiURLFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, apiURLFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiURLFlag: apiURLFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) apiURLOverride() string {
	if c.apiURLFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.apiURLFlag)
}

func (c *commandContext) newClient(opts ...client.Option) (*client.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	override := c.apiURLOverride()
	if override == "" {
		return client.NewFromConfig(cfg, opts...), nil
	}
	base := []client.Option{client.WithPolling(cfg.PollInterval(), cfg.BackoffInterval())}
	return client.New(override, append(base, opts...)...), nil
}

// wrapAPIError turns connection failures into a hint about starting the daemon.
func wrapAPIError(err error, baseURL string) error {
	if err == nil {
		return nil
	}
	if client.IsAPIUnavailable(err) {
		return fmt.Errorf("connect to daemon: %s is not reachable; start it with `harp serve`", baseURL)
	}
	return err
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
