package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lsds/paramserver/srcs/go/utils"
)

const (
	ConnRetryCount  = 500
	ConnRetryPeriod = 200 * time.Millisecond
)

// InprocEndpoint is the well-known address of the router of a process.
const InprocEndpoint = `inproc://router`

const (
	LogLevelEnvKey         = `PS_CONFIG_LOG_LEVEL`
	RouterBufferSizeEnvKey = `PS_CONFIG_ROUTER_BUFFER_SIZE`
	MaxSplitsEnvKey        = `PS_CONFIG_MAX_SPLITS`
	SplitThresholdEnvKey   = `PS_CONFIG_SPLIT_THRESHOLD`
	PollTimeoutEnvKey      = `PS_CONFIG_POLL_TIMEOUT`
	EnableMonitoringEnvKey = `PS_CONFIG_ENABLE_MONITORING`
	MonitoringPortEnvKey   = `PS_CONFIG_MONITORING_PORT`
	MonitoringPeriodEnvKey = `PS_CONFIG_MONITORING_PERIOD`
	StallTimeoutEnvKey     = `PS_CONFIG_STALL_TIMEOUT`
)

// RunIDEnvKey carries the id the launcher gives to a run.
const RunIDEnvKey = `PS_RUN_ID`

// ConfigEnvKeys are forwarded by the launcher to every process.
var ConfigEnvKeys = []string{
	LogLevelEnvKey,
	RouterBufferSizeEnvKey,
	MaxSplitsEnvKey,
	SplitThresholdEnvKey,
	PollTimeoutEnvKey,
	EnableMonitoringEnvKey,
	MonitoringPortEnvKey,
	MonitoringPeriodEnvKey,
	StallTimeoutEnvKey,
}

var (
	LogLevel         = `INFO`
	RouterBufferSize = 100
	MaxSplits        = 100
	SplitThreshold   = 1000000 // in floats
	PollTimeout      = 100 * time.Millisecond
	EnableMonitoring = false
	MonitoringPort   = 0 // 0 means base port + 10000 of the process
	MonitoringPeriod = 1 * time.Second
	StallTimeout     = 10 * time.Second
)

func init() {
	if val := os.Getenv(LogLevelEnvKey); len(val) > 0 {
		LogLevel = strings.ToUpper(val)
	}
	if val := os.Getenv(RouterBufferSizeEnvKey); len(val) > 0 {
		RouterBufferSize = parseInt(val)
	}
	if val := os.Getenv(MaxSplitsEnvKey); len(val) > 0 {
		MaxSplits = parseInt(val)
	}
	if val := os.Getenv(SplitThresholdEnvKey); len(val) > 0 {
		SplitThreshold = parseInt(val)
	}
	if val := os.Getenv(PollTimeoutEnvKey); len(val) > 0 {
		PollTimeout = parseDuration(val)
	}
	if val := os.Getenv(EnableMonitoringEnvKey); len(val) > 0 {
		EnableMonitoring = isTrue(val)
	}
	if val := os.Getenv(MonitoringPortEnvKey); len(val) > 0 {
		MonitoringPort = parseInt(val)
	}
	if val := os.Getenv(MonitoringPeriodEnvKey); len(val) > 0 {
		MonitoringPeriod = parseDuration(val)
	}
	if val := os.Getenv(StallTimeoutEnvKey); len(val) > 0 {
		StallTimeout = parseDuration(val)
	}
}

func isTrue(val string) bool {
	return val == "true"
}

func parseInt(val string) int {
	n, err := strconv.Atoi(val)
	if err != nil {
		utils.ExitErr(err)
	}
	return n
}

func parseDuration(val string) time.Duration {
	d, err := time.ParseDuration(val)
	if err != nil {
		utils.ExitErr(err)
	}
	return d
}
