package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"fleetrun/lib/coordinator"
	"fleetrun/lib/slog"
)

// pollInterval is how often dispatchd checks the coordinator for newly
// succeeded tasks while draining.
const pollInterval = 20 * time.Millisecond

// sliceFile splits the contents of path into numTasks roughly equal
// blocks, the last absorbing any remainder, following the same
// block_size/last_block_size split used by the file-slicing reference
// driver this command is modeled on. numTasks is capped at half the file
// size, so every block holds at least two bytes.
func sliceFile(path string, numTasks int) ([][]byte, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dispatchd: read input file: %w", err)
	}
	size := len(contents)
	if size < 2 {
		return nil, fmt.Errorf("dispatchd: input file %s is too small to split", path)
	}
	if numTasks > size/2 {
		numTasks = size / 2
	}

	blockSize := size / numTasks
	blocks := make([][]byte, numTasks)
	for i := 0; i < numTasks-1; i++ {
		blocks[i] = contents[i*blockSize : (i+1)*blockSize]
	}
	blocks[numTasks-1] = contents[(numTasks-1)*blockSize:]
	return blocks, nil
}

// runDispatch starts a coordinator serving program, submits one task per
// block (each block prefixed with targetChar), blocks until every task
// has succeeded, and returns the sum of the decoded per-block counts.
func runDispatch(logger slog.Logger, program []byte, listenAddress string, blocks [][]byte, targetChar byte) (uint64, error) {
	c, err := coordinator.New(logger, program, listenAddress)
	if err != nil {
		return 0, fmt.Errorf("dispatchd: start coordinator: %w", err)
	}
	defer c.Terminate()

	for _, block := range blocks {
		data := make([]byte, 0, len(block)+1)
		data = append(data, targetChar)
		data = append(data, block...)
		c.Submit(data)
	}

	var total uint64
	remaining := len(blocks)
	for remaining > 0 {
		for _, task := range c.Drain() {
			if len(task.Result) != 8 {
				return 0, fmt.Errorf("dispatchd: task %d returned %d result bytes, want 8", task.Uid, len(task.Result))
			}
			total += binary.LittleEndian.Uint64(task.Result)
			remaining--
		}
		if remaining > 0 {
			time.Sleep(pollInterval)
		}
	}
	return total, nil
}

func formatResult(total uint64) string {
	return fmt.Sprintf("Computed result is: %d\n", total)
}
