// Copyright 2026 The JLS Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jls

import (
	"strconv"

	"github.com/jlscore/jls/internal/backend"
)

// MsgCallback receives human-readable progress/diagnostic messages from
// Copy, mirroring the reader's logging callback for open-with-warnings.
type MsgCallback func(msg string)

// ProgressCallback reports bytes copied so far against the source file's
// total size.
type ProgressCallback func(done, total int64)

// Copy re-serializes src into dst chunk by chunk. Because a chunk's
// on-disk size is a pure function of its payload length and chunks are
// replayed in identical physical order, dst's chunk offsets come out
// byte-identical to src's -- so item_next/item_prev absolute-offset
// pointers need no rewriting at all; they are copied through verbatim,
// per spec.md §4.11/§6's copy(src, dst, msg_cb, progress_cb).
//
// A chunk whose payload fails CRC validation is skipped (with msgCB
// notified) rather than aborting the whole copy -- "chunk-by-chunk
// re-serialization with error-skipping". A chunk header that cannot be
// read or fails its CRC ends the copy there (msgCB is notified and dst is
// closed with everything copied so far), since the next chunk's offset
// cannot be derived without it. Skipping a chunk breaks the
// byte-identical-offset invariant for everything physically after it, so
// this recovery path is only meant for a handful of corrupt chunks near
// the tail of a crash-damaged file; Repair should run on dst afterward
// for such files.
func Copy(src, dst string, msgCB MsgCallback, progressCB ProgressCallback) error {
	if msgCB == nil {
		msgCB = func(string) {}
	}
	if progressCB == nil {
		progressCB = func(int64, int64) {}
	}

	in, err := openRaw(src, backend.ModeRead)
	if err != nil {
		return wrap(IO, err, "copy: open source")
	}
	defer in.be.Close()

	out, err := openRaw(dst, backend.ModeWrite)
	if err != nil {
		return wrap(IO, err, "copy: open destination")
	}

	total := in.be.End()
	offset := int64(fileHeaderLen)
	for {
		h, err := in.chunkSeek(offset)
		if err != nil {
			if IsEmpty(err) {
				break
			}
			msgCB("copy: stopping at unreadable chunk header at offset " + strconv.FormatInt(offset, 10) + ": " + err.Error())
			break
		}

		size := chunkTotalSize(h.payloadLength)
		if h.tag == TagEnd {
			if _, err := out.wr(h, nil); err != nil {
				out.be.Close()
				return wrap(IO, err, "copy: write END chunk")
			}
			progressCB(offset+size, total)
			break
		}

		payload, err := in.rdPayload()
		if err != nil {
			msgCB("copy: skipping corrupt chunk at offset " + strconv.FormatInt(offset, 10) + ": " + err.Error())
			offset += size
			progressCB(offset, total)
			continue
		}

		if _, err := out.wr(h, payload); err != nil {
			out.be.Close()
			return wrap(IO, err, "copy: write chunk at offset %d", offset)
		}

		offset += size
		progressCB(offset, total)
	}

	return out.close()
}
