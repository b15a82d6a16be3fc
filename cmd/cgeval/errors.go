// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/CodeGraphEval/cmd/cgeval/config"
	"github.com/AleutianAI/CodeGraphEval/pkg/ux"
	"github.com/AleutianAI/CodeGraphEval/services/eval"
)

// Exit codes.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitUsage  = 2
)

// errEvaluationFailed is returned when a run completes but not every
// scenario passed. It has been reported already.
var errEvaluationFailed = errors.New("evaluation failed")

// UsageError marks a failure caused by the command line or configuration
// rather than by the system under test.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

func usageErrorf(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// exitCode maps an error returned by a command to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var usage *UsageError
	switch {
	case errors.As(err, &usage),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, eval.ErrInvalidScenario),
		errors.Is(err, eval.ErrUnknownScenario):
		return ExitUsage
	default:
		return ExitFailed
	}
}

// report prints err, unless it was already reported, and returns its exit
// code.
func (a *app) report(err error) int {
	code := exitCode(err)
	if errors.Is(err, errEvaluationFailed) {
		return code
	}
	ux.NewPrinter(a.errOut, a.personality()).Status(ux.StatusFail, "%v", err)
	return code
}
