package sidecar

import (
	"regexp"
	"strconv"

	"github.com/bnema/swarmchat/internal/domain"
)

type Signal int

const (
	SignalNone Signal = iota
	SignalReady
	SignalError
)

// LineClassifier decides what a node log line says about the node.
type LineClassifier interface {
	Classify(stream domain.NodeLogStream, line string) Signal
}

// RegexClassifier matches ready lines first, then error lines. A nil
// pattern never matches.
type RegexClassifier struct {
	Ready *regexp.Regexp
	Error *regexp.Regexp
}

func DefaultClassifier() RegexClassifier {
	return RegexClassifier{
		Ready: regexp.MustCompile(`(?i)listening|ready|started`),
		Error: regexp.MustCompile(`(?i)error|panic|failed|fatal`),
	}
}

func (c RegexClassifier) Classify(_ domain.NodeLogStream, line string) Signal {
	switch {
	case c.Ready != nil && c.Ready.MatchString(line):
		return SignalReady
	case c.Error != nil && c.Error.MatchString(line):
		return SignalError
	default:
		return SignalNone
	}
}

var portPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\blisten\w*\b.*?:(\d{2,5})\b`),
	regexp.MustCompile(`(?i)\bport[\s=:]+(\d{2,5})\b`),
}

// DetectPort pulls a client API port out of a log line.
func DetectPort(line string) (int, bool) {
	for _, pattern := range portPatterns {
		match := pattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		port, err := strconv.Atoi(match[1])
		if err == nil && port > 0 && port <= 65535 {
			return port, true
		}
	}
	return 0, false
}
