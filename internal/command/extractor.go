package command

import (
	"fmt"
	"strings"
)

// Kind distinguishes the two outbound topic families a destination serves.
type Kind string

const (
	// KindCommand addresses application-level device commands.
	KindCommand Kind = "command"

	// KindSystem addresses system-level messages (registration acks,
	// lifecycle notifications).
	KindSystem Kind = "system"
)

// TopicExtractor derives per-device publish topics from configured topic
// expressions. Each expression carries exactly one %s placeholder which is
// substituted with the target's hardware id, e.g.
// "fieldcomm/command/%s" -> "fieldcomm/command/sensor-001".
type TopicExtractor struct {
	commandExpr string
	systemExpr  string
}

// NewTopicExtractor validates the two topic expressions and returns an
// extractor. Validation happens here, at start-up, so a malformed
// expression is a configuration error rather than a per-command failure.
//
// Returns ErrBadTopicExpr if either expression does not contain exactly
// one %s placeholder.
func NewTopicExtractor(commandExpr, systemExpr string) (*TopicExtractor, error) {
	if err := validateTopicExpr(commandExpr); err != nil {
		return nil, fmt.Errorf("command topic %q: %w", commandExpr, err)
	}
	if err := validateTopicExpr(systemExpr); err != nil {
		return nil, fmt.Errorf("system topic %q: %w", systemExpr, err)
	}
	return &TopicExtractor{commandExpr: commandExpr, systemExpr: systemExpr}, nil
}

// Topic returns the publish topic for the given device and message kind.
func (e *TopicExtractor) Topic(hardwareID string, kind Kind) string {
	expr := e.commandExpr
	if kind == KindSystem {
		expr = e.systemExpr
	}
	return fmt.Sprintf(expr, hardwareID)
}

func validateTopicExpr(expr string) error {
	if strings.Count(expr, "%s") != 1 {
		return ErrBadTopicExpr
	}
	// Reject any other formatting verb; the expression is substituted with
	// a single string argument.
	if strings.Count(strings.ReplaceAll(expr, "%%", ""), "%") != 1 {
		return ErrBadTopicExpr
	}
	return nil
}
