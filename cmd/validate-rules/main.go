// Command validate-rules checks forwarding rule files for structural problems
// without connecting to Telegram. Intended for use as a pre-commit hook.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/DimaPhil/telegram-forwarder/internal/rules"
)

func main() {
	paths := os.Args[1:]
	if len(paths) == 0 {
		paths = []string{"forwarding_rules.json"}
	}

	failed := false
	for _, path := range paths {
		if !validate(path) {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}

func validate(path string) bool {
	ruleSet, err := rules.Load(path)
	if err != nil {
		fmt.Printf("❌ %s: %v\n", path, err)
		return false
	}

	ok := true
	targets := 0
	for source, entry := range ruleSet {
		if source == "" {
			fmt.Printf("❌ %s: empty source chat id\n", path)
			ok = false
		}
		for scope, scopeTargets := range entry {
			if scope != rules.Wildcard {
				if _, err := strconv.Atoi(scope); err != nil {
					fmt.Printf("❌ %s: source %s has invalid topic key %q (want %q or a topic id)\n", path, source, scope, rules.Wildcard)
					ok = false
				}
			}
			if len(scopeTargets) == 0 {
				fmt.Printf("❌ %s: source %s scope %q has no targets\n", path, source, scope)
				ok = false
			}
			for _, t := range scopeTargets {
				targets++
				if t.ChatID == "" {
					fmt.Printf("❌ %s: source %s scope %q has a target without chat_id\n", path, source, scope)
					ok = false
				}
				if t.TopicID != nil && *t.TopicID <= 0 {
					fmt.Printf("❌ %s: source %s scope %q has non-positive topic_id %d\n", path, source, scope, *t.TopicID)
					ok = false
				}
			}
		}
	}

	if ok {
		fmt.Printf("✅ %s is valid (%d sources, %d targets)\n", path, len(ruleSet), targets)
	}
	return ok
}
