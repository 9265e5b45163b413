// Zaparoo Timekeeper
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Timekeeper.
//
// Zaparoo Timekeeper is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Timekeeper is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Timekeeper.  If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"net/url"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

// BrokerCredentials are the login details for one MQTT broker.
type BrokerCredentials struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// brokerAddr is a broker key or URL reduced to what credentials are matched
// on. tls is only meaningful when scheme is set.
type brokerAddr struct {
	hostPort string
	scheme   bool
	tls      bool
}

// transportTLS reports whether an MQTT scheme runs over TLS.
func transportTLS(scheme string) (tls, ok bool) {
	switch strings.ToLower(scheme) {
	case "mqtt", "tcp":
		return false, true
	case "mqtts", "ssl", "tls":
		return true, true
	default:
		return false, false
	}
}

func parseBrokerAddr(raw string) (brokerAddr, bool) {
	if !strings.Contains(raw, "://") {
		if raw == "" {
			return brokerAddr{}, false
		}
		return brokerAddr{hostPort: strings.ToLower(raw)}, true
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return brokerAddr{}, false
	}
	tls, ok := transportTLS(u.Scheme)
	if !ok {
		return brokerAddr{}, false
	}
	return brokerAddr{hostPort: strings.ToLower(u.Host), scheme: true, tls: tls}, true
}

// LoadAuthFromData parses the auth file. Each table is keyed by a broker,
// either a URL or a bare host:port that matches any transport:
//
//	["mqtts://broker.lan:8883"]
//	username = "clock"
//	password = "secret"
//
// Keys that are not MQTT brokers are skipped.
func LoadAuthFromData(data []byte) map[string]BrokerCredentials {
	result := make(map[string]BrokerCredentials)

	var raw map[string]BrokerCredentials
	if err := toml.Unmarshal(data, &raw); err != nil {
		log.Warn().Err(err).Msg("ignoring malformed auth file")
		return result
	}
	for k, v := range raw {
		if _, ok := parseBrokerAddr(k); !ok {
			log.Warn().Str("key", k).Msg("auth entry is not an mqtt broker, skipping")
			continue
		}
		result[k] = v
	}
	return result
}

// LookupAuth finds the credentials for brokerURL. An entry for the same
// host and transport wins over a bare host:port entry.
func LookupAuth(creds map[string]BrokerCredentials, brokerURL string) *BrokerCredentials {
	if len(creds) == 0 {
		return nil
	}
	want, ok := parseBrokerAddr(brokerURL)
	if !ok || !want.scheme {
		log.Warn().Str("broker", brokerURL).Msg("invalid broker url for auth lookup")
		return nil
	}

	var fallback *BrokerCredentials
	for k, v := range creds {
		have, ok := parseBrokerAddr(k)
		if !ok || have.hostPort != want.hostPort {
			continue
		}
		if !have.scheme {
			fallback = &v
			continue
		}
		if have.tls == want.tls {
			return &v
		}
	}
	return fallback
}
