// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"os"
	"strings"
)

// WritablePath returns the base directory for mutable state (logs, the
// decision database, memory files). It reads ROUTEAI_WRITABLE_PATH; an
// empty value means the current working directory.
func WritablePath() string {
	return strings.TrimSpace(os.Getenv("ROUTEAI_WRITABLE_PATH"))
}
