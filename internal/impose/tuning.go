package impose

// 以下の係数は出力の見た目を既存ツールと一致させるための経験値です。
// 値を変えるとレイアウトが変わるため、整理目的で書き換えないこと。
const (
	marginXRatio = 0.02
	marginYRatio = 0.01

	// 縦向きで行数が多いときの行高さ圧縮
	portraitDenseRowCompaction = 0.95 // rows >= 4
	portraitThreeRowCompaction = 0.97 // rows == 3

	spacingXRatio          = 0.01
	portraitSpacingYRatio  = 0.005
	landscapeSpacingYRatio = 0.01

	portraitFillBias      = 1.02
	portraitSafetyShrink  = 0.99
	landscapeSafetyShrink = 0.98

	portraitRowSpacingFactor = 0.05
)
