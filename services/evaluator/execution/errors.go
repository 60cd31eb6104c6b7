// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrTimeout marks a test case whose model call exceeded its deadline.
// Timeouts are never retried.
var ErrTimeout = errors.New("execution timed out")

// ErrRetryExhausted marks a test case whose execution attempts were all
// spent without success.
var ErrRetryExhausted = errors.New("all execution attempts failed")

// timeoutErr builds an ErrTimeout with the deadline attached.
func timeoutErr(timeoutMs int64) error {
	return fmt.Errorf("%w after %dms", ErrTimeout, timeoutMs)
}

// isTimeout reports whether err indicates a per-case deadline hit,
// either our own sentinel, a context deadline, or a provider error
// whose message mentions a timeout.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return isTimeoutMessage(err.Error())
}

// isTimeoutMessage is the string-level check, also applied to failure
// messages already folded into a Score.
func isTimeoutMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
}
