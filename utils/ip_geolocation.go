package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

const unknownLocation = "Unknown"

var geoClient = &http.Client{Timeout: 3 * time.Second}

// GeoLookupURL is the lookup endpoint; %s is replaced with the address.
var GeoLookupURL = "http://ip-api.com/json/%s"

// GetIPLocation resolves an address to "City, Country". Loopback and private
// addresses resolve to "Local" without a network call.
func GetIPLocation(ctx context.Context, ipAddress string) string {
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return unknownLocation
	}
	if ip.IsLoopback() || ip.IsPrivate() {
		return "Local"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(GeoLookupURL, ipAddress), nil)
	if err != nil {
		return unknownLocation
	}
	resp, err := geoClient.Do(req)
	if err != nil {
		return unknownLocation
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unknownLocation
	}

	var result struct {
		Country string `json:"country"`
		City    string `json:"city"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return unknownLocation
	}

	if result.City != "" && result.Country != "" {
		return fmt.Sprintf("%s, %s", result.City, result.Country)
	}
	return unknownLocation
}
