package descriptor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Yi-FanLi/deepmd-kit/internal/data"
	"github.com/Yi-FanLi/deepmd-kit/internal/logging"
	"github.com/Yi-FanLi/deepmd-kit/internal/nlist"
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
)

const defaultAutoSelRatio = 1.1

// parseAutoSel reports whether v asks for an automatic selection and
// returns its ratio. Accepted forms are "auto" and "auto:<ratio>".
func parseAutoSel(v any) (float64, bool, error) {
	str, ok := v.(string)
	if !ok {
		return 0, false, nil
	}
	if str == "auto" {
		return defaultAutoSelRatio, true, nil
	}
	rest, found := strings.CutPrefix(str, "auto:")
	if !found {
		return 0, false, configErr("sel must be a list of integers, \"auto\" or \"auto:<ratio>\", got %q", str)
	}
	ratio, err := strconv.ParseFloat(rest, 64)
	if err != nil || ratio <= 0 {
		return 0, false, configErr("invalid sel ratio %q", rest)
	}
	return ratio, true, nil
}

// wrapUp4 rounds x up to a multiple of four.
func wrapUp4(x int) int {
	return 4 * ((x + 3) / 4)
}

// updateSel resolves "auto" selections from the neighbor statistics of
// train and warns about user selections that are too small.
func updateSel(train data.DataSystem, typeMap []string, local serialization.Dict) (serialization.Dict, float64, error) {
	out := local.Clone()
	rcut, err := out.Float("rcut")
	if err != nil {
		return nil, 0, invalidConfig(err)
	}
	if typeMap == nil {
		typeMap = train.TypeMap()
	}
	minDist, maxNbor, err := nlist.NewNeighborStat(len(typeMap), rcut, false).Get(train)
	if err != nil {
		return nil, 0, fmt.Errorf("neighbor statistics: %w", err)
	}

	ratio, auto, err := parseAutoSel(out["sel"])
	if err != nil {
		return nil, 0, err
	}
	if auto {
		sel := make([]int, len(maxNbor))
		for i, n := range maxNbor {
			sel[i] = wrapUp4(int(float64(n) * ratio))
		}
		out["sel"] = sel
		return out, minDist, nil
	}

	sel, ok := serialization.IntsValue(out["sel"])
	if !ok {
		if n, err := out.Int("sel"); err == nil {
			sel = []int{n}
		} else {
			return nil, 0, invalidConfig(err)
		}
	}
	for i := 0; i < len(sel) && i < len(maxNbor); i++ {
		if sel[i] > 0 && maxNbor[i] > sel[i] {
			logging.L().Warn(fmt.Sprintf("sel of type %d is not enough! The expected value is not less than %d, but you set it to %d. The accuracy of your model may get worse.",
				i, maxNbor[i], sel[i]))
		}
	}
	return out, minDist, nil
}
