package packet

import (
	"strings"
	"unicode/utf8"

	"github.com/snode/goqtt/pkg/er"
)

// SplitLevels splits a topic name or filter into its '/'-delimited levels.
func SplitLevels(topic string) []string {
	return strings.Split(topic, "/")
}

func containsWildcards(topic string) bool {
	return strings.ContainsAny(topic, "+#")
}

func hasControlOrNull(topic string) error {
	for _, r := range topic {
		if r == 0 {
			return &er.Err{Context: "topic", Message: er.ErrNullCharacterInTopic}
		}
		if (r >= 0x0001 && r <= 0x001F) || (r >= 0x007F && r <= 0x009F) {
			return &er.Err{Context: "topic", Message: er.ErrControlCharacterInTopic}
		}
	}
	return nil
}

// ValidateTopicName validates a PUBLISH topic: no wildcards, valid UTF-8, no
// control characters, non-empty.
func ValidateTopicName(topic string) error {
	if topic == "" {
		return &er.Err{Context: "ValidateTopicName", Message: er.ErrEmptyTopic}
	}
	if !utf8.ValidString(topic) {
		return &er.Err{Context: "ValidateTopicName", Message: er.ErrInvalidUTF8Topic}
	}
	if err := hasControlOrNull(topic); err != nil {
		return err
	}
	if containsWildcards(topic) {
		return &er.Err{Context: "ValidateTopicName", Message: er.ErrWildcardsNotAllowedInPublish}
	}
	return nil
}

// ValidateTopicFilter validates a SUBSCRIBE/UNSUBSCRIBE topic filter: valid
// UTF-8, no control characters, and wildcard placement rules — '#' only as
// the sole content of the final level, '+' only as the sole content of any
// level (MQTT 3.1.1 §4.7).
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return &er.Err{Context: "ValidateTopicFilter", Message: er.ErrEmptyTopicFilter}
	}
	if !utf8.ValidString(filter) {
		return &er.Err{Context: "ValidateTopicFilter", Message: er.ErrInvalidUTF8TopicFilter}
	}
	for _, r := range filter {
		if r == 0 {
			return &er.Err{Context: "ValidateTopicFilter", Message: er.ErrNullCharacterInTopicFilter}
		}
		if (r >= 0x0001 && r <= 0x001F) || (r >= 0x007F && r <= 0x009F) {
			return &er.Err{Context: "ValidateTopicFilter", Message: er.ErrControlCharacterInTopicFilter}
		}
	}

	levels := SplitLevels(filter)
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return &er.Err{Context: "ValidateTopicFilter", Message: er.ErrMultiLevelWildcardNotLast}
			}
		case strings.Contains(level, "#"):
			return &er.Err{Context: "ValidateTopicFilter", Message: er.ErrMultiLevelWildcardNotAlone}
		case level == "+":
			// fine anywhere
		case strings.Contains(level, "+"):
			return &er.Err{Context: "ValidateTopicFilter", Message: er.ErrSingleLevelWildcardNotAlone}
		}
	}

	return nil
}
