package rules

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SetupInteractive offers to create a single forwarding rule when the rule
// table is empty. It returns true if a rule was created and saved to path.
// Called once at startup, before message processing begins.
func SetupInteractive(rules Rules, path string, in io.Reader, out io.Writer) (bool, error) {
	if len(rules) > 0 {
		return false, nil
	}

	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "\nNo forwarding rules found in", path)
	fmt.Fprint(out, "Would you like to set up a simple forwarding rule now? (y/n): ")
	if !readYes(reader) {
		fmt.Fprintln(out, "\nNo problem! You can edit the rules file manually later.")
		return false, nil
	}

	fmt.Fprintln(out, "\nTo set up forwarding, we need the source and destination chat IDs.")
	fmt.Fprintln(out, "You can get chat IDs by forwarding a message from the chat to @userinfobot")
	fmt.Fprintln(out)

	fmt.Fprint(out, "Enter source chat ID (the chat you want to monitor): ")
	sourceChat := readLine(reader)
	if sourceChat == "" {
		fmt.Fprintln(out, "Skipping rule creation.")
		return false, nil
	}

	fmt.Fprint(out, "Enter destination chat ID (where messages should be forwarded): ")
	destChat := readLine(reader)
	if destChat == "" {
		fmt.Fprintln(out, "Skipping rule creation.")
		return false, nil
	}

	target := Target{ChatID: destChat}

	fmt.Fprint(out, "Do you want to filter messages by user IDs? (y/n): ")
	if readYes(reader) {
		fmt.Fprint(out, "Enter comma-separated list of user IDs to forward messages from: ")
		for _, part := range strings.Split(readLine(reader), ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				fmt.Fprintf(out, "Skipping invalid user ID %q\n", part)
				continue
			}
			target.UserIDs = append(target.UserIDs, id)
		}
	}

	rules[sourceChat] = Entry{Wildcard: []Target{target}}

	if err := Save(path, rules); err != nil {
		return false, fmt.Errorf("save rules: %w", err)
	}

	fmt.Fprintln(out, "\nForwarding rule created successfully!")
	msg := fmt.Sprintf("All messages from %s will be forwarded to %s", sourceChat, destChat)
	if len(target.UserIDs) > 0 {
		msg += fmt.Sprintf(" (but only from users with IDs: %v)", target.UserIDs)
	}
	fmt.Fprintln(out, msg)

	return true, nil
}

func readLine(r *bufio.Reader) string {
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

func readYes(r *bufio.Reader) bool {
	return strings.EqualFold(readLine(r), "y")
}
