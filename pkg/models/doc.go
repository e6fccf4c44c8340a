/*
Package models defines the data structures shared by the speedtester packages: the
measurement servers taken from the server directory, the client profile reported by the
directory, and the enumerated download sizes.

Core Types:

Server describes one measurement server:

	type Server struct {
		ID          string    // Directory identifier
		URL         string    // Upload handler URL, e.g. http://host:8080/speedtest/upload.php
		Lat, Lon    float64   // Geographic coordinate
		Name        string    // City or label
		Country     string    // Country name
		CountryCode string    // ISO country code
		Sponsor     string    // Operator of the server
		Host        string    // host:port
		Distance    float64   // Great-circle distance to the client in km
		Latency     float64   // Probed latency in ms, LatencyUnset until probed
	}

Client describes the measuring host:

	type Client struct {
		IP        string
		ISP       string
		Lat, Lon  float64
		IgnoreIDs map[string]struct{} // Server ids the directory asks us to skip
	}

FileSize enumerates the download image dimensions:

	Small  = 350
	Medium = 750
	Large  = 1500
	Huge   = 3000

Value Semantics:

Servers are passed by value. The resolver and the latency prober never modify a Server
they were given; they return copies produced by WithDistance and WithLatency. This keeps
a Server safe to share between goroutines once it has been returned.

Database Integration:

Server carries bun tags so that the directory cache in package database can store the
last resolved directory. Distance and Latency are not stored: both depend on where and
when the client measured them.
*/
package models
