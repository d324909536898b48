package mux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/yapingcat/gomedia/go-mp4"
)

// Native muxes in process with go-mp4. Packets are copied as-is: the first
// video track of videoPath, then the first audio track of audioPath.
type Native struct{}

// Mux implements Muxer.
func (Native) Mux(ctx context.Context, videoPath, audioPath, outPath string) error {
	videoFile, err := os.Open(videoPath)
	if err != nil {
		return err
	}
	defer videoFile.Close()
	audioFile, err := os.Open(audioPath)
	if err != nil {
		return err
	}
	defer audioFile.Close()

	videoDemuxer := mp4.CreateMp4Demuxer(videoFile)
	videoTracks, err := videoDemuxer.ReadHead()
	if err != nil {
		return fmt.Errorf("read video header: %w", err)
	}
	audioDemuxer := mp4.CreateMp4Demuxer(audioFile)
	audioTracks, err := audioDemuxer.ReadHead()
	if err != nil {
		return fmt.Errorf("read audio header: %w", err)
	}
	if len(videoTracks) == 0 || len(audioTracks) == 0 {
		return errors.New("input has no tracks")
	}

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	muxer, err := mp4.CreateMp4Muxer(out)
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("create muxer: %w", err)
	}
	vtid := muxer.AddVideoTrack(mp4.MP4_CODEC_TYPE(videoTracks[0].Cid))
	atid := muxer.AddAudioTrack(mp4.MP4_CODEC_TYPE(audioTracks[0].Cid))

	if err := copyPackets(ctx, videoDemuxer, videoTracks[0], func(data []byte, pts, dts uint64) error {
		return muxer.Write(vtid, data, pts, dts)
	}); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy video: %w", err)
	}
	if err := copyPackets(ctx, audioDemuxer, audioTracks[0], func(data []byte, pts, dts uint64) error {
		return muxer.Write(atid, data, pts, dts)
	}); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy audio: %w", err)
	}

	if err := muxer.WriteTrailer(); err != nil {
		_ = out.Close()
		return fmt.Errorf("write trailer: %w", err)
	}
	return out.Close()
}

// copyPackets feeds every packet of track to write until EOF.
func copyPackets(ctx context.Context, d *mp4.MovDemuxer, track mp4.TrackInfo, write func(data []byte, pts, dts uint64) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkg, err := d.ReadPacket()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if pkg.Cid != track.Cid {
			continue
		}
		if err := write(pkg.Data, uint64(pkg.Pts), uint64(pkg.Dts)); err != nil {
			return err
		}
	}
}
