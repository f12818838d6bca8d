package pdf

import "github.com/qiuxuhao/pdf-merge-tool/internal/impose"

// ProgressReporter は進捗更新用コールバックです。
type ProgressReporter func(stage string, percent int)

// 各ステージが占める進捗の範囲（読込20% / 処理60% / 書込20%）
var stageRanges = map[string][2]int{
	impose.StageLoad:    {0, 20},
	impose.StageProcess: {20, 80},
	impose.StageWrite:   {80, 100},
}

func reportProgress(cb ProgressReporter, stage string, percent int) {
	if cb == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	cb(stage, percent)
}

// engineProgress はエンジンの done/total 進捗を全体のパーセントに変換します。
func engineProgress(cb ProgressReporter) impose.ProgressFunc {
	if cb == nil {
		return nil
	}
	return func(stage string, done, total int) {
		r, ok := stageRanges[stage]
		if !ok || total <= 0 {
			return
		}
		reportProgress(cb, stage, r[0]+(r[1]-r[0])*done/total)
	}
}
