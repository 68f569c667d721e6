package transcode

import (
	"context"
	"fmt"
	"log"
	"time"
)

// defaultStepInterval は進捗更新1ステップあたりの間隔。
const defaultStepInterval = time.Second

// worker は変換ジョブをバックグラウンドで処理する。
// 実際のメディア変換は行わず、進捗を段階的に進めるシミュレーションのみを行う。
type worker struct {
	// store はジョブの永続化層。
	store *Store
	// stepInterval は進捗更新1ステップあたりの間隔。
	stepInterval time.Duration
	// outputDir は変換結果の出力先ディレクトリ。
	outputDir string
}

// process は変換ジョブを処理する。goroutineとして起動されることを想定する。
// 各ステップの間で条件付きUPDATEの結果を確認し、キャンセルを検出したら即座に停止する。
func (w *worker) process(id int64, targetFormat string) {
	ctx := context.Background()

	ok, err := w.store.MarkProcessing(ctx, id)
	if err != nil {
		log.Printf("変換ジョブの開始に失敗 (id=%d): %v", id, err)
		w.fail(ctx, id, err)
		return
	}
	if !ok {
		// 開始前にキャンセルされたジョブは処理しない
		log.Printf("変換ジョブは開始前にキャンセル済み (id=%d)", id)
		return
	}

	// 進捗を10%刻みで進めるシミュレーション
	for progress := 0; progress <= 100; progress += 10 {
		time.Sleep(w.stepInterval)

		ok, err := w.store.SetProgress(ctx, id, progress)
		if err != nil {
			log.Printf("進捗の更新に失敗 (id=%d): %v", id, err)
			w.fail(ctx, id, err)
			return
		}
		if !ok {
			log.Printf("変換ジョブがキャンセルされたため停止 (id=%d, progress=%d)", id, progress)
			return
		}
	}

	outputPath := fmt.Sprintf("%s/transcoded_%d.%s", w.outputDir, id, targetFormat)
	ok, err = w.store.MarkCompleted(ctx, id, outputPath)
	if err != nil {
		log.Printf("変換ジョブの完了処理に失敗 (id=%d): %v", id, err)
		w.fail(ctx, id, err)
		return
	}
	if !ok {
		log.Printf("変換ジョブは完了直前にキャンセル済み (id=%d)", id)
		return
	}

	log.Printf("変換ジョブが完了 (id=%d, output=%s)", id, outputPath)
}

// fail はジョブを失敗状態に遷移させる。遷移自体の失敗はログに記録するのみ。
func (w *worker) fail(ctx context.Context, id int64, cause error) {
	if err := w.store.MarkFailed(ctx, id, cause.Error()); err != nil {
		log.Printf("変換ジョブの失敗記録に失敗 (id=%d): %v", id, err)
	}
}
