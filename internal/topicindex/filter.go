package topicindex

import (
	"fmt"
	"strings"

	"github.com/rmacdonaldsmith/eventhub-go/pkg/topicindex"
)

// splitPath splits a topic or filter into its segments.
// The empty string is the root topic and has no segments.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, topicindex.Separator)
}

// ValidateFilter checks the syntax of a subscription filter.
// Every segment must be non-empty, "#" may only be the last segment, and a
// segment containing a wildcard character must consist of that character alone.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: filter cannot be empty", topicindex.ErrInvalidFilter)
	}

	segments := splitPath(filter)
	for i, seg := range segments {
		switch {
		case seg == "":
			return fmt.Errorf("%w: empty segment in %q", topicindex.ErrInvalidFilter, filter)
		case seg == topicindex.WildcardMulti:
			if i != len(segments)-1 {
				return fmt.Errorf("%w: %q must be the last segment in %q", topicindex.ErrInvalidFilter, topicindex.WildcardMulti, filter)
			}
		case seg == topicindex.WildcardSingle:
		case strings.ContainsAny(seg, topicindex.WildcardSingle+topicindex.WildcardMulti):
			return fmt.Errorf("%w: segment %q mixes wildcard and literal characters", topicindex.ErrInvalidFilter, seg)
		}
	}
	return nil
}

// ValidateTopicName checks the syntax of a publish topic.
// Wildcard characters are never allowed. The empty topic is the root topic;
// any other topic must not contain empty segments.
func ValidateTopicName(topic string) error {
	if strings.ContainsAny(topic, topicindex.WildcardSingle+topicindex.WildcardMulti) {
		return fmt.Errorf("%w: wildcard in %q", topicindex.ErrInvalidTopicName, topic)
	}
	for _, seg := range splitPath(topic) {
		if seg == "" {
			return fmt.Errorf("%w: empty segment in %q", topicindex.ErrInvalidTopicName, topic)
		}
	}
	return nil
}

// Matches reports whether filter matches topic. Both are assumed valid.
// It walks the two paths linearly and is the reference for the tree matcher.
func Matches(filter, topic string) bool {
	fs := splitPath(filter)
	ts := splitPath(topic)

	for i, f := range fs {
		if f == topicindex.WildcardMulti {
			return true
		}
		if i >= len(ts) {
			return false
		}
		if f != topicindex.WildcardSingle && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}
