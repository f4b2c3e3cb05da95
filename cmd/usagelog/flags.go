package main

import "time"

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// ServeFlags Flag structs to decouple cobra from logic for testing.
type ServeFlags struct {
	ConfigPath string
	Listen     string
	Sink       string
}

type SendFlags struct {
	ConfigPath string
	Type       string
	Payload    string
	Durable    time.Duration
	Close      string
	Collector  string
	Timeout    time.Duration
}

type HealthFlags struct {
	ConfigPath string
	Collector  string
	CACert     string
	Insecure   bool
	Timeout    time.Duration
}
