package agent

// TruncateStrategy selects how TruncateHistory reclaims budget.
type TruncateStrategy string

const (
	// TruncateSmart preserves the leading system run and the last KeepLast
	// messages, then packs as many of the most recent middle messages as fit.
	TruncateSmart TruncateStrategy = "smart"
	// TruncateFIFO drops the oldest non-system messages until the history fits.
	TruncateFIFO TruncateStrategy = "fifo"
	// TruncateMiddle keeps head and tail and fills from both ends inward.
	TruncateMiddle TruncateStrategy = "middle"
)

// TruncateOptions configures TruncateHistory.
type TruncateOptions struct {
	Strategy  TruncateStrategy
	Budget    int // token budget; <=0 disables truncation
	KeepFirst int // head size (smart: max leading system messages)
	KeepLast  int // tail size
	Counter   TokenCounter
}

// TruncateHistory returns a subsequence of msgs that fits opts.Budget tokens.
// Message order and roles are always preserved; only whole messages are
// dropped. The input slice is never mutated.
func TruncateHistory(msgs []ConversationMessage, opts TruncateOptions) []ConversationMessage {
	if opts.Budget <= 0 || len(msgs) == 0 {
		return msgs
	}
	counter := opts.Counter
	if counter == nil {
		counter = HeuristicCounter{}
	}
	if CountHistoryTokens(counter, msgs) <= opts.Budget {
		return msgs
	}

	switch opts.Strategy {
	case TruncateFIFO:
		return truncateFIFO(msgs, opts.Budget, counter)
	case TruncateMiddle:
		return truncateMiddle(msgs, opts, counter)
	default:
		return truncateSmart(msgs, opts, counter)
	}
}

// truncateSmart keeps the leading system run (capped at KeepFirst) and the
// last KeepLast messages, then packs the most recent middle messages that
// still fit the remaining budget, restoring original order.
func truncateSmart(msgs []ConversationMessage, opts TruncateOptions, counter TokenCounter) []ConversationMessage {
	headEnd := leadingSystemRun(msgs, opts.KeepFirst)
	tailStart := len(msgs) - opts.KeepLast
	if tailStart < headEnd {
		tailStart = headEnd
	}

	used := 0
	for _, m := range msgs[:headEnd] {
		used += CountMessageTokens(counter, m)
	}
	for _, m := range msgs[tailStart:] {
		used += CountMessageTokens(counter, m)
	}

	// Pack middle messages newest-first.
	kept := make([]bool, tailStart-headEnd)
	for i := tailStart - 1; i >= headEnd; i-- {
		cost := CountMessageTokens(counter, msgs[i])
		if used+cost > opts.Budget {
			continue
		}
		used += cost
		kept[i-headEnd] = true
	}

	out := make([]ConversationMessage, 0, len(msgs))
	out = append(out, msgs[:headEnd]...)
	for i := headEnd; i < tailStart; i++ {
		if kept[i-headEnd] {
			out = append(out, msgs[i])
		}
	}
	out = append(out, msgs[tailStart:]...)
	return out
}

// truncateFIFO drops the oldest non-system message until the history fits.
// System messages are never dropped.
func truncateFIFO(msgs []ConversationMessage, budget int, counter TokenCounter) []ConversationMessage {
	out := make([]ConversationMessage, len(msgs))
	copy(out, msgs)
	for CountHistoryTokens(counter, out) > budget {
		dropped := false
		for i, m := range out {
			if m.Role != RoleSystem {
				out = append(out[:i], out[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			return out // only system messages left
		}
	}
	return out
}

// truncateMiddle keeps the first KeepFirst and last KeepLast messages, then
// fills the gap from both ends inward with whatever still fits.
func truncateMiddle(msgs []ConversationMessage, opts TruncateOptions, counter TokenCounter) []ConversationMessage {
	headEnd := opts.KeepFirst
	if headEnd > len(msgs) {
		headEnd = len(msgs)
	}
	tailStart := len(msgs) - opts.KeepLast
	if tailStart < headEnd {
		tailStart = headEnd
	}

	used := 0
	for _, m := range msgs[:headEnd] {
		used += CountMessageTokens(counter, m)
	}
	for _, m := range msgs[tailStart:] {
		used += CountMessageTokens(counter, m)
	}

	kept := make([]bool, tailStart-headEnd)
	lo, hi := headEnd, tailStart-1
	fromFront := true
	for lo <= hi {
		var idx int
		if fromFront {
			idx = lo
			lo++
		} else {
			idx = hi
			hi--
		}
		fromFront = !fromFront
		cost := CountMessageTokens(counter, msgs[idx])
		if used+cost > opts.Budget {
			continue
		}
		used += cost
		kept[idx-headEnd] = true
	}

	out := make([]ConversationMessage, 0, len(msgs))
	out = append(out, msgs[:headEnd]...)
	for i := headEnd; i < tailStart; i++ {
		if kept[i-headEnd] {
			out = append(out, msgs[i])
		}
	}
	out = append(out, msgs[tailStart:]...)
	return out
}

// leadingSystemRun returns the length of the leading run of system messages,
// capped at max (max <= 0 means no head is preserved).
func leadingSystemRun(msgs []ConversationMessage, max int) int {
	if max <= 0 {
		return 0
	}
	n := 0
	for _, m := range msgs {
		if m.Role != RoleSystem || n >= max {
			break
		}
		n++
	}
	return n
}

// CapMessages enforces the history length cap used by the graph's messages
// reducer: when the history exceeds maxLen, the leading system run is
// preserved and the most recent messages fill the remainder.
func CapMessages(msgs []ConversationMessage, maxLen int) []ConversationMessage {
	if maxLen <= 0 || len(msgs) <= maxLen {
		return msgs
	}
	headEnd := leadingSystemRun(msgs, maxLen)
	budget := maxLen - headEnd
	out := make([]ConversationMessage, 0, maxLen)
	out = append(out, msgs[:headEnd]...)
	out = append(out, msgs[len(msgs)-budget:]...)
	return out
}
