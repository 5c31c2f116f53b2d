package layout

// ErrorKind enumerates the validator's error taxonomy, matching the
// ValidatorErrorMessage enum in the original mosalloc source
// (MemoryIntervalsValidator.cc) one for one.
type ErrorKind int

const (
	Success ErrorKind = iota
	InvalidPageSize
	Invalid1GBStartOffset
	Invalid2MBStartOffset
	SizeOf1GBIntervalError
	SizeOf2MBIntervalError
	OffsetBetweenTwo1GBIntervalsError
	OffsetBetweenTwo2MBIntervalsError
	OffsetBetween1GBAnd2MBIntervalsError
)

func (k ErrorKind) String() string {
	switch k {
	case Success:
		return "success"
	case InvalidPageSize:
		return "interval has a page size other than 2MiB or 1GiB"
	case Invalid1GBStartOffset:
		return "1GiB interval start offset is not 4KiB-aligned"
	case Invalid2MBStartOffset:
		return "2MiB interval start offset is not 4KiB-aligned"
	case SizeOf1GBIntervalError:
		return "1GiB interval size is not a positive multiple of 1GiB"
	case SizeOf2MBIntervalError:
		return "2MiB interval size is not a positive multiple of 2MiB"
	case OffsetBetweenTwo1GBIntervalsError:
		return "gap between two 1GiB intervals is not a multiple of 1GiB"
	case OffsetBetweenTwo2MBIntervalsError:
		return "gap between two 2MiB intervals is not a multiple of 2MiB"
	case OffsetBetween1GBAnd2MBIntervalsError:
		return "first 1GiB and first 2MiB interval are not 2MiB cross-aligned"
	default:
		return "unknown validation error"
	}
}

// Validate checks alignment and size rules on list:
//   - every interval's page size is 2MiB or 1GiB (a 4KiB interval has no
//     business in a caller-supplied list; fillers are inserted later by
//     HPBR.Initialize)
//   - every start offset is 4KiB-aligned
//   - each 1GiB (2MiB) interval's size is a non-zero multiple of 1GiB (2MiB)
//   - gaps between consecutive same-page-size intervals are multiples of
//     that page size
//   - the first 1GiB and first 2MiB interval cross-align to 2MiB
func Validate(list *IntervalList) ErrorKind {
	list.Sort()
	ones := list.OfPageSize(Huge1GiB)
	twos := list.OfPageSize(Huge2MiB)

	if len(ones)+len(twos) != list.Len() {
		return InvalidPageSize
	}

	if res := validateHomogeneous(ones, Huge1GiB); res != Success {
		return res
	}
	if res := validateHomogeneous(twos, Huge2MiB); res != Success {
		return res
	}

	if len(ones) != 0 && len(twos) != 0 {
		diff := int64(ones[0].Start) - int64(twos[0].Start)
		if diff < 0 {
			diff = -diff
		}
		if !IsAligned(uint64(diff), uint64(Huge2MiB)) {
			return OffsetBetween1GBAnd2MBIntervalsError
		}
	}

	return Success
}

func validateHomogeneous(intervals []MemoryInterval, pageSize PageSize) ErrorKind {
	if len(intervals) == 0 {
		return Success
	}
	startErr, sizeErr, gapErr := Invalid2MBStartOffset, SizeOf2MBIntervalError, OffsetBetweenTwo2MBIntervalsError
	if pageSize == Huge1GiB {
		startErr, sizeErr, gapErr = Invalid1GBStartOffset, SizeOf1GBIntervalError, OffsetBetweenTwo1GBIntervalsError
	}

	for i, iv := range intervals {
		if !IsAligned(iv.Start, uint64(Base4KiB)) {
			return startErr
		}
		size := iv.Length()
		if size == 0 || !IsAligned(size, uint64(pageSize)) {
			return sizeErr
		}
		if i == 0 {
			continue
		}
		gap := iv.Start - intervals[i-1].End
		if !IsAligned(gap, uint64(pageSize)) {
			return gapErr
		}
	}
	return Success
}
