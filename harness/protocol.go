// Package harness runs dataflow engines that live outside this process.
// A harness binary reads JSON requests from stdin, one per line, and
// answers drain requests with one JSON reply per line on stdout.
package harness

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/weiihann/flowbench/engine"
	"github.com/weiihann/flowbench/workload"
)

// Request ops.
const (
	OpSubmit  = "submit"
	OpAdvance = "advance"
	OpDrain   = "drain"
	OpClose   = "close"
)

// Request is one line written to a harness's stdin.
type Request struct {
	Op      string       `json:"op"`
	Epoch   engine.Epoch `json:"epoch"`
	Updates []WireUpdate `json:"updates,omitempty"`
}

// Reply answers a drain request.
type Reply struct {
	Epoch engine.Epoch `json:"epoch"`
	Items int          `json:"items"`
	Error string       `json:"error,omitempty"`
}

// WireUpdate encodes an update as a [key, value, diff] triple.
type WireUpdate workload.Update

func (u WireUpdate) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = append(buf, '[')
	buf = strconv.AppendUint(buf, u.Key, 10)
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, u.Value, 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, u.Diff, 10)
	buf = append(buf, ']')

	return buf, nil
}

func (u *WireUpdate) UnmarshalJSON(data []byte) error {
	var triple [3]json.Number
	if err := json.Unmarshal(data, &triple); err != nil {
		return fmt.Errorf("decode update: %w", err)
	}

	key, err := strconv.ParseUint(triple[0].String(), 10, 64)
	if err != nil {
		return fmt.Errorf("decode update key: %w", err)
	}

	value, err := strconv.ParseUint(triple[1].String(), 10, 64)
	if err != nil {
		return fmt.Errorf("decode update value: %w", err)
	}

	diff, err := strconv.ParseInt(triple[2].String(), 10, 64)
	if err != nil {
		return fmt.Errorf("decode update diff: %w", err)
	}

	*u = WireUpdate{Record: workload.Record{Key: key, Value: value}, Diff: diff}

	return nil
}

func toWire(batch []workload.Update) []WireUpdate {
	out := make([]WireUpdate, len(batch))
	for i, u := range batch {
		out[i] = WireUpdate(u)
	}

	return out
}

func fromWire(batch []WireUpdate) []workload.Update {
	out := make([]workload.Update, len(batch))
	for i, u := range batch {
		out[i] = workload.Update(u)
	}

	return out
}

// maxLine bounds a single protocol line.
const maxLine = 64 << 20

// Serve runs the harness side of the protocol over in and out, feeding
// each sealed epoch through op. It returns nil on a close request or
// end of input.
func Serve(in io.Reader, out io.Writer, op engine.Operator) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)

	var (
		frontier engine.Frontier
		pending  = make(map[engine.Epoch][]workload.Update)
		output   = make(map[engine.Epoch]int)
	)

	reply := func(r Reply) error {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}

		return w.Flush()
	}

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			return fmt.Errorf("decode request: %w", err)
		}

		switch req.Op {
		case OpSubmit:
			if err := frontier.Submit(req.Epoch); err != nil {
				return err
			}

			pending[req.Epoch] = append(pending[req.Epoch], fromWire(req.Updates)...)

		case OpAdvance:
			if err := frontier.Advance(req.Epoch); err != nil {
				return err
			}

			epochs := make([]engine.Epoch, 0, len(pending))
			for e := range pending {
				if e <= req.Epoch {
					epochs = append(epochs, e)
				}
			}

			sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })

			for _, e := range epochs {
				output[req.Epoch] += len(op.Step(pending[e]))
				delete(pending, e)
			}

		case OpDrain:
			if !frontier.Sealed(req.Epoch) {
				if err := reply(Reply{Epoch: req.Epoch, Error: "epoch not sealed"}); err != nil {
					return err
				}

				continue
			}

			items := 0
			for e, n := range output {
				if e <= req.Epoch {
					items += n
					delete(output, e)
				}
			}

			if err := reply(Reply{Epoch: req.Epoch, Items: items}); err != nil {
				return err
			}

		case OpClose:
			return nil

		default:
			return fmt.Errorf("unknown op %q", req.Op)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read requests: %w", err)
	}

	return nil
}
