// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/packedtensor/backends"
	"github.com/gomlx/packedtensor/pkg/core/tensordesc"
	"github.com/gomlx/packedtensor/pkg/packing"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	redRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

// keyValueTable is a two columns table, where rows can be highlighted in red.
type keyValueTable struct {
	table *lgtable.Table
	count int
	reds  map[int]bool
}

func newKeyValueTable() *keyValueTable {
	t := &keyValueTable{reds: make(map[int]bool)}
	t.table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				s = headerRowStyle
				return
			}
			if t.reds[row] {
				s = redRowStyle
			} else if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
	return t
}

func (t *keyValueTable) row(isRed bool, key string, value any) {
	if isRed {
		t.reds[t.count] = true
	}
	t.table.Row(key, fmt.Sprint(value))
	t.count++
}

func (t *keyValueTable) print(title string) {
	fmt.Println(titleStyle.Render(title))
	fmt.Println(t.table.Render())
}

func formatBytes(n int) string {
	return humanize.IBytes(uint64(n))
}

func report(backend backends.Backend, layout tensordesc.Descriptor, result runResult) {
	caps := backend.Capabilities()
	config := newKeyValueTable()
	config.row(false, "backend", backend.Name())
	config.row(false, "description", backend.Description())
	config.row(false, "pack by default", caps.PackByDefault)
	config.row(false, "native transform", caps.NativeTransform)
	config.row(false, "stream", result.streamName)
	config.row(false, "layout", layout)
	config.row(false, "packed layout", layout.Packed())
	config.row(false, "fully packed", layout.IsFullyPacked())
	if value, found := os.LookupEnv(packing.ForcePackedEnv); found {
		config.row(false, "policy override", fmt.Sprintf("%s=%q", packing.ForcePackedEnv, value))
	}
	config.row(false, "should pack", result.shouldPack)
	config.print("Configuration")

	results := newKeyValueTable()
	results.row(false, "read proxy converted", result.readConverted)
	results.row(false, "write proxy converted", result.writeConverted)
	results.row(false, "round trips", humanize.Comma(int64(result.iterations)))
	results.row(false, "elapsed", result.elapsed.Round(time.Microsecond))
	if result.iterations > 0 {
		results.row(false, "per round trip", (result.elapsed / time.Duration(result.iterations)).Round(time.Nanosecond))
	}
	results.row(result.mismatches > 0, "mismatches", humanize.Comma(int64(result.mismatches)))
	results.row(result.liveDescriptors > 1, "live descriptors", result.liveDescriptors)
	results.print("Results")

	stats := result.stats
	alloc := newKeyValueTable()
	alloc.row(false, "requests", humanize.Comma(int64(stats.Requests)))
	alloc.row(false, "cache hits", humanize.Comma(int64(stats.CacheHits)))
	alloc.row(false, "device mallocs", humanize.Comma(int64(stats.DeviceMallocs)))
	alloc.row(false, "device frees", humanize.Comma(int64(stats.DeviceFrees)))
	alloc.row(stats.LiveBlocks > 0, "live", fmt.Sprintf("%d blocks, %s", stats.LiveBlocks, formatBytes(stats.LiveBytes)))
	alloc.row(false, "cached", fmt.Sprintf("%d blocks, %s", stats.CachedBlocks, formatBytes(stats.CachedBytes)))
	alloc.print("Scratch allocator")

	device := newKeyValueTable()
	device.row(false, "tensors", formatBytes(result.deviceAllocation))
	device.row(false, "free", humanize.IBytes(result.memInfo.Free))
	device.row(false, "total", humanize.IBytes(result.memInfo.Total))
	device.print("Device")
}
