// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

package descriptor

import (
	"github.com/Yi-FanLi/deepmd-kit/data"
	"github.com/Yi-FanLi/deepmd-kit/internal/descriptor"
)

// UpdateSel fills in the "sel" of a descriptor configuration from the
// neighbor statistics of train. "auto" and "auto:<ratio>" pick the
// largest neighbor count times the ratio, rounded up to a multiple of 4.
// It returns the updated copy and the minimal neighbor distance.
func UpdateSel(train data.DataSystem, typeMap []string, local map[string]any) (map[string]any, float64, error) {
	return descriptor.UpdateSel(train, typeMap, local)
}
