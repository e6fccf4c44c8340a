package config

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"speedtester/pkg/fetch"
)

// Shadowsocks describes a shadowsocks server to tunnel measurements through
type Shadowsocks struct {
	Server     string `mapstructure:"server" json:"server"`
	ServerPort int    `mapstructure:"server_port" json:"server_port"`
	Method     string `mapstructure:"method" json:"method"`
	Password   string `mapstructure:"password" json:"password"`
	Prefix     string `mapstructure:"prefix" json:"prefix"`
}

// BuildURL converts the settings into an ss:// transport config string
func (c Shadowsocks) BuildURL() (string, error) {
	if c.Server == "" || c.ServerPort <= 0 {
		return "", fmt.Errorf("shadowsocks server and server_port are required")
	}
	if c.Method == "" {
		return "", fmt.Errorf("shadowsocks method is required")
	}

	// Create userinfo by base64 encoding "method:password"
	userInfo := base64.URLEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", c.Method, c.Password)))

	u := &url.URL{
		Scheme: "ss",
		User:   url.User(userInfo),
		Host:   fmt.Sprintf("%s:%d", c.Server, c.ServerPort),
	}

	if c.Prefix != "" {
		q := url.Values{}
		q.Add("prefix", c.Prefix)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// ParseShadowsocks parses a JSON shadowsocks config and returns its transport string
func ParseShadowsocks(jsonConfig string) (string, error) {
	var c Shadowsocks
	if err := json.Unmarshal([]byte(jsonConfig), &c); err != nil {
		return "", fmt.Errorf("failed to parse JSON config: %w", err)
	}

	return c.BuildURL()
}

// ResolveTransport expands an ssconfig:// transport into the ss:// config it points
// to, fetched over https. Any other transport string is returned unchanged.
func ResolveTransport(ctx context.Context, client fetch.Doer, transport string) (string, error) {
	if !strings.HasPrefix(transport, "ssconfig://") {
		return transport, nil
	}

	u, err := url.Parse(transport)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	u.Scheme = "https"

	body, err := fetch.GetRaw(ctx, client, u.String())
	if err != nil {
		return "", fmt.Errorf("failed to fetch transport config: %w", err)
	}

	content := strings.TrimSpace(string(body))
	if strings.HasPrefix(content, "ss://") {
		return content, nil
	}
	return ParseShadowsocks(content)
}
