// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ReplicaRow is one parsed row of `longhorn ls-replica` output.
type ReplicaRow struct {
	Endpoint      string
	Mode          string
	SnapshotChain []string
}

// ParseReplicaList parses the ls-replica table: skip the header line; for
// each remaining non-empty line, the first whitespace-delimited token is
// the endpoint, the second is the mode, and a trailing "[v1 v2 ...]" group
// is the snapshot chain. Tolerates trailing blank lines and ragged spacing.
func ParseReplicaList(stdout string) ([]ReplicaRow, error) {
	lines := nonEmptyLines(stdout)
	if len(lines) == 0 {
		return nil, nil
	}
	lines = lines[1:] // header

	rows := make([]ReplicaRow, 0, len(lines))
	for _, line := range lines {
		chain, rest := extractBracketGroup(line)
		fields := strings.Fields(rest)
		if len(fields) < 2 {
			continue
		}
		rows = append(rows, ReplicaRow{
			Endpoint:      fields[0],
			Mode:          fields[1],
			SnapshotChain: chain,
		})
	}
	return rows, nil
}

// extractBracketGroup pulls a trailing "[a b c]" group out of line, returning
// its tokens and the remainder of the line with the group removed.
func extractBracketGroup(line string) ([]string, string) {
	open := strings.Index(line, "[")
	close := strings.LastIndex(line, "]")
	if open < 0 || close < open {
		return nil, line
	}
	inner := strings.TrimSpace(line[open+1 : close])
	rest := line[:open] + line[close+1:]
	if inner == "" {
		return nil, rest
	}
	return strings.Fields(inner), rest
}

// ParseSnapshotList parses `longhorn snapshots ls` output: skip the header,
// remaining non-empty lines are snapshot names.
func ParseSnapshotList(stdout string) []string {
	lines := nonEmptyLines(stdout)
	if len(lines) == 0 {
		return nil
	}
	return lines[1:]
}

// ParseJSON unmarshals a whole-stdout JSON document into v, the shared
// shape for `info`, `snapshot-info`, `snapshot-hash-status` and friends.
func ParseJSON(stdout string, v interface{}) error {
	if err := json.Unmarshal([]byte(stdout), v); err != nil {
		return fmt.Errorf("failed to parse engine JSON output: %w", err)
	}
	return nil
}

// DFResult is the parsed second line of `df`, converted from 1k-blocks to GiB.
type DFResult struct {
	TotalGiB   int
	UsedGiB    int
	AvailGiB   int
	UsePercent int
}

const kbPerGiB = 1024 * 1024

// ParseDF parses `df`'s second line (the first is the header):
// "<filesystem> <1k-blocks> <used> <available> <use%> <mounted-on>".
func ParseDF(stdout string) (*DFResult, error) {
	lines := nonEmptyLines(stdout)
	if len(lines) < 2 {
		return nil, fmt.Errorf("unexpected df output: %q", stdout)
	}
	fields := strings.Fields(lines[1])
	if len(fields) < 4 {
		return nil, fmt.Errorf("unexpected df output line: %q", lines[1])
	}

	total, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse df total: %w", err)
	}
	used, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse df used: %w", err)
	}
	avail, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse df available: %w", err)
	}

	pct := 0
	if len(fields) >= 5 {
		pct, _ = strconv.Atoi(strings.TrimSuffix(fields[4], "%"))
	}

	return &DFResult{
		TotalGiB:   int(total / kbPerGiB),
		UsedGiB:    int(used / kbPerGiB),
		AvailGiB:   int(avail / kbPerGiB),
		UsePercent: pct,
	}, nil
}

// ParseDU parses `du -s`'s first line's leading 1k-blocks field into GiB.
func ParseDU(stdout string) (int, error) {
	lines := nonEmptyLines(stdout)
	if len(lines) == 0 {
		return 0, fmt.Errorf("unexpected du output: %q", stdout)
	}
	fields := strings.Fields(lines[0])
	if len(fields) < 1 {
		return 0, fmt.Errorf("unexpected du output line: %q", lines[0])
	}
	blocks, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse du output: %w", err)
	}
	return int(blocks / kbPerGiB), nil
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
