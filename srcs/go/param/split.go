package param

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/lsds/paramserver/srcs/go/log"
	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/pkg/errors"
)

var ErrTooManySplits = errors.New("too many splits")

const (
	maxSplitFloats = msg.MaxFrameSize / 4
	// FallbackThreshold replaces a threshold that would not fit in one frame.
	FallbackThreshold = 1000000
)

// Segment is a contiguous range of a parameter sent as one unit.
type Segment struct {
	SplitID int
	ParamID int
	Offset  int
	Length  int
}

func (s Segment) End() int {
	return s.Offset + s.Length
}

func (s Segment) String() string {
	return fmt.Sprintf("split %d of param %d [%d, %d)", s.SplitID, s.ParamID, s.Offset, s.End())
}

func SplitIDOf(paramID, seq, maxSplits int) int {
	return paramID*maxSplits + seq
}

func ParamIDOf(splitID, maxSplits int) int {
	return splitID / maxSplits
}

// SplitParam cuts a parameter of localSize floats into ceil(localSize/threshold) segments.
func SplitParam(paramID, localSize, threshold, maxSplits int) ([]Segment, error) {
	if threshold <= 0 || maxSplits <= 0 {
		return nil, errors.Errorf("invalid split threshold %d or max splits %d", threshold, maxSplits)
	}
	if threshold >= maxSplitFloats {
		log.Warnf("split of %s floats exceeds the max frame size %s, param %d of %s floats is split by %s instead",
			humanize.Comma(int64(threshold)), humanize.Bytes(msg.MaxFrameSize),
			paramID, humanize.Comma(int64(localSize)), humanize.Comma(FallbackThreshold))
		threshold = FallbackThreshold
	}
	n := localSize / threshold
	if localSize%threshold != 0 {
		n++
	}
	if n > maxSplits {
		return nil, errors.Wrapf(ErrTooManySplits, "param %d of %d floats needs %d splits of %d, max is %d", paramID, localSize, n, threshold, maxSplits)
	}
	if last := SplitIDOf(paramID, n-1, maxSplits); n > 0 && last > msg.MaxTarget {
		return nil, errors.Wrapf(msg.ErrFieldOverflow, "split id %d of param %d", last, paramID)
	}
	segs := make([]Segment, n)
	for j, pos := 0, 0; j < n; j++ {
		length := min(threshold, localSize-pos)
		segs[j] = Segment{
			SplitID: SplitIDOf(paramID, j, maxSplits),
			ParamID: paramID,
			Offset:  pos,
			Length:  length,
		}
		pos += length
	}
	return segs, nil
}
