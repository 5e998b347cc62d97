// Package host answers read-only questions about the machine the server
// runs on: which iOS SDKs are installed, which one is the default, and the
// port the server advertises to the instrumentation process.
//
// Info is immutable after construction and safe to share between sessions.
package host

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/logging"
)

// Info is a snapshot of host capabilities.
type Info struct {
	port       int
	sdks       []string
	defaultSDK string
}

// New creates host info from an explicit SDK list. When defaultSDK is empty
// the highest installed version is used.
func New(port int, sdks []string, defaultSDK string) *Info {
	installed := slices.Clone(sdks)
	slices.SortFunc(installed, compareVersions)
	installed = slices.Compact(installed)

	if defaultSDK == "" && len(installed) > 0 {
		defaultSDK = installed[len(installed)-1]
	}

	return &Info{
		port:       port,
		sdks:       installed,
		defaultSDK: defaultSDK,
	}
}

// Port returns the server's advertised port.
func (i *Info) Port() int {
	return i.port
}

// InstalledSDKs returns the installed SDK versions in ascending order.
func (i *Info) InstalledSDKs() []string {
	return slices.Clone(i.sdks)
}

// DefaultSDK returns the SDK used when a session does not ask for one.
func (i *Info) DefaultSDK() string {
	return i.defaultSDK
}

// HasSDK reports whether version is installed.
func (i *Info) HasSDK(version string) bool {
	return slices.Contains(i.sdks, version)
}

// sdkPattern matches simulator SDK lines from `xcodebuild -showsdks`, e.g.
// "iOS Simulator 9.1  -sdk iphonesimulator9.1".
var sdkPattern = regexp.MustCompile(`-sdk\s+iphonesimulator(\d+(?:\.\d+)*)`)

// ParseSDKs extracts simulator SDK versions from `xcodebuild -showsdks`
// output.
func ParseSDKs(output []byte) []string {
	var versions []string
	for _, match := range sdkPattern.FindAllSubmatch(output, -1) {
		versions = append(versions, string(match[1]))
	}
	return versions
}

// ProbeConfig controls how Probe discovers SDKs.
type ProbeConfig struct {
	Port       int
	SDKs       []string // used as-is when non-empty, or as fallback
	DefaultSDK string
	Probe      bool
	Command    []string
}

// Probe builds Info by running the configured SDK listing command. Probe
// failures are logged and the configured SDK list is used instead.
func Probe(ctx context.Context, cfg ProbeConfig, logger *logging.Logger) *Info {
	logger = logging.OrNop(logger)

	sdks := cfg.SDKs
	if len(sdks) == 0 && cfg.Probe && len(cfg.Command) > 0 {
		var stdout bytes.Buffer
		cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
		cmd.Stdout = &stdout
		if err := cmd.Run(); err != nil {
			logger.Warn("SDK probe failed, no SDKs discovered",
				zap.Strings("command", cfg.Command),
				zap.Error(err),
			)
		} else {
			sdks = ParseSDKs(stdout.Bytes())
		}
	}

	info := New(cfg.Port, sdks, cfg.DefaultSDK)
	logger.Info("Host SDKs resolved",
		zap.Strings("installed", info.sdks),
		zap.String("default", info.defaultSDK),
	)
	return info
}

// compareVersions orders dotted numeric versions ("8.4" < "9.1" < "10.0").
func compareVersions(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var na, nb int
		if i < len(pa) {
			na, _ = strconv.Atoi(pa[i])
		}
		if i < len(pb) {
			nb, _ = strconv.Atoi(pb[i])
		}
		if na != nb {
			return na - nb
		}
	}
	return strings.Compare(a, b)
}

// String implements fmt.Stringer for log output.
func (i *Info) String() string {
	return fmt.Sprintf("port=%d sdks=%v default=%s", i.port, i.sdks, i.defaultSDK)
}
