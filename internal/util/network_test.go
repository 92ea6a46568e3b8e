// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func ginContext(remoteAddr string, headers map[string]string) *gin.Context {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest("GET", "/v0/management/overrides", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.Request = req
	return c
}

func TestIsLocalhostDirect(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       bool
	}{
		{"loopback v4", "127.0.0.1:52000", nil, true},
		{"loopback v6", "[::1]:52000", nil, true},
		{"remote host", "192.168.1.20:52000", nil, false},
		{"missing port", "127.0.0.1", nil, false},
		{"forwarded-for present", "127.0.0.1:52000", map[string]string{"X-Forwarded-For": "10.0.0.9"}, false},
		{"real-ip present", "127.0.0.1:52000", map[string]string{"X-Real-IP": "10.0.0.9"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLocalhostDirect(ginContext(tt.remoteAddr, tt.headers)); got != tt.want {
				t.Fatalf("IsLocalhostDirect() = %v, want %v", got, tt.want)
			}
		})
	}
}
