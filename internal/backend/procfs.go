package backend

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/girste/blueteam/internal/errors"
)

// ParseStatLine parses one /proc/<pid>/stat line. The command name sits between
// the first "(" and the last ")" since it may itself contain both, and spaces;
// the ppid is the second field after the closing parenthesis.
func ParseStatLine(line string) (pid int, name string, ppid int, err error) {
	start := strings.IndexByte(line, '(')
	end := strings.LastIndexByte(line, ')')
	if start < 0 || end < start {
		return 0, "", 0, errors.Wrap(errors.ErrParseFailure, "stat line %q", line)
	}

	pid, err = strconv.Atoi(strings.TrimSpace(line[:start]))
	if err != nil {
		return 0, "", 0, errors.Wrap(errors.ErrParseFailure, "stat pid %q", line[:start])
	}
	name = line[start+1 : end]

	// state, ppid, pgrp, ...
	fields := strings.Fields(line[end+1:])
	if len(fields) < 2 {
		return 0, "", 0, errors.Wrap(errors.ErrParseFailure, "stat line %q: truncated", line)
	}
	ppid, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, "", 0, errors.Wrap(errors.ErrParseFailure, "stat ppid %q", fields[1])
	}
	return pid, name, ppid, nil
}

// ParseUidLine parses grep -H output such as
// "/proc/812/status:Uid:\t0\t0\t0\t0" into the pid and its real uid.
func ParseUidLine(line string) (pid, uid int, err error) {
	rest, ok := strings.CutPrefix(line, "/proc/")
	if !ok {
		return 0, 0, errors.Wrap(errors.ErrParseFailure, "uid line %q", line)
	}
	pidStr, rest, ok := strings.Cut(rest, "/status:")
	if !ok {
		return 0, 0, errors.Wrap(errors.ErrParseFailure, "uid line %q", line)
	}
	if pid, err = strconv.Atoi(pidStr); err != nil {
		return 0, 0, errors.Wrap(errors.ErrParseFailure, "uid line pid %q", pidStr)
	}

	fields := strings.Fields(strings.TrimPrefix(rest, "Uid:"))
	if len(fields) == 0 {
		return 0, 0, errors.Wrap(errors.ErrParseFailure, "uid line %q: no uid", line)
	}
	if uid, err = strconv.Atoi(fields[0]); err != nil {
		return 0, 0, errors.Wrap(errors.ErrParseFailure, "uid %q", fields[0])
	}
	return pid, uid, nil
}

// SplitCmdline splits the raw contents of /proc/<pid>/cmdline on NUL bytes.
// Kernel threads have an empty cmdline and yield an empty slice.
func SplitCmdline(raw []byte) []string {
	raw = bytes.TrimRight(raw, "\x00")
	if len(raw) == 0 {
		return []string{}
	}
	parts := bytes.Split(raw, []byte{0})
	args := make([]string, len(parts))
	for i, p := range parts {
		args[i] = string(p)
	}
	return args
}
