package main

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
}

type ScanFlags struct {
	JSON  bool
	NoCwd bool
}

type ServeFlags struct {
	Daemonize   bool
	PidFile     string
	LogFile     string
	WatchConfig bool
}

type MatchersFlags struct {
	JSON bool
}
