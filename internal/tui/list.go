package tui

// runList tracks the selected row and the first visible row of the run
// list panel
type runList struct {
	cursor int
	offset int
	rows   int
}

func (l *runList) up() bool {
	if l.cursor <= 0 {
		return false
	}
	l.cursor--
	l.reveal()
	return true
}

func (l *runList) down(count int) bool {
	if l.cursor >= count-1 {
		return false
	}
	l.cursor++
	l.reveal()
	return true
}

func (l *runList) first() {
	l.cursor = 0
	l.offset = 0
}

func (l *runList) last(count int) {
	if count <= 0 {
		return
	}
	l.cursor = count - 1
	l.reveal()
}

// selectIndex moves the cursor to i, clamped to the list
func (l *runList) selectIndex(i, count int) {
	l.cursor = max(0, min(i, count-1))
	l.reveal()
}

// visible returns the [start, end) range of rows to render
func (l *runList) visible(count int) (start, end int) {
	start = l.offset
	end = min(count, l.offset+max(l.rows, 1))
	if start > end {
		start = end
	}
	return start, end
}

// reveal scrolls so the cursor is within the visible rows
func (l *runList) reveal() {
	if l.cursor < l.offset {
		l.offset = l.cursor
	}
	if l.rows > 0 && l.cursor >= l.offset+l.rows {
		l.offset = l.cursor - l.rows + 1
	}
	if l.offset < 0 {
		l.offset = 0
	}
}
