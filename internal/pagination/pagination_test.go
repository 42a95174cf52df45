package pagination

import "testing"

func assertBound(t *testing.T, name string, got *int64, want *int64) {
	t.Helper()
	switch {
	case got == nil && want == nil:
	case got == nil:
		t.Errorf("%s = nil, want %d", name, *want)
	case want == nil:
		t.Errorf("%s = %d, want nil", name, *got)
	case *got != *want:
		t.Errorf("%s = %d, want %d", name, *got, *want)
	}
}

func TestWindow_Normalize_BeforeTakesPrecedence(t *testing.T) {
	w := Window{Before: Ptr(500), After: Ptr(300)}.Normalize(DefaultHomePageCount)

	assertBound(t, "Before", w.Before, Ptr(500))
	assertBound(t, "After", w.After, nil)

	alone := Window{Before: Ptr(500)}.Normalize(DefaultHomePageCount)
	if *alone.Before != *w.Before || alone.After != nil || alone.MaxCount != w.MaxCount {
		t.Errorf("{before:500, after:300} は {before:500} と等価であるべき: got %+v, want %+v", w, alone)
	}
}

func TestWindow_Normalize_DefaultCount(t *testing.T) {
	tests := []struct {
		name         string
		window       Window
		defaultCount int
		want         int
	}{
		{name: "ホームページのデフォルト", window: Window{}, defaultCount: DefaultHomePageCount, want: 10},
		{name: "ユーザーページのデフォルト", window: Window{}, defaultCount: DefaultUserPageCount, want: 30},
		{name: "明示指定", window: Window{MaxCount: 7}, defaultCount: DefaultUserPageCount, want: 7},
		{name: "負の値はデフォルト", window: Window{MaxCount: -1}, defaultCount: DefaultHomePageCount, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.window.Normalize(tt.defaultCount).MaxCount
			if got != tt.want {
				t.Errorf("MaxCount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWindow_Normalize_DoesNotAliasInput(t *testing.T) {
	before := int64(1000)
	w := Window{Before: &before}.Normalize(10)
	before = 1
	if *w.Before != 1000 {
		t.Errorf("正規化後のBeforeが入力と共有されている: %d", *w.Before)
	}
}

func TestComputeCursor(t *testing.T) {
	fullPage := []int64{2000, 1900, 1800, 1700, 1600, 1500, 1400, 1300, 1200, 1100}

	tests := []struct {
		name       string
		window     Window
		timestamps []int64
		truncated  bool
		wantBefore *int64
		wantAfter  *int64
	}{
		{
			name:       "beforeありで空の場合は境界の直前をafterにする",
			window:     Window{Before: Ptr(1000), MaxCount: 10},
			wantAfter:  Ptr(999),
			wantBefore: nil,
		},
		{
			name:       "afterありで空の場合は境界の直後をbeforeにする",
			window:     Window{After: Ptr(1000), MaxCount: 10},
			wantBefore: Ptr(1001),
		},
		{
			name:   "境界なしで空の場合はカーソルなし",
			window: Window{MaxCount: 10},
		},
		{
			name:       "境界なしで満杯のページはbeforeのみ",
			window:     Window{MaxCount: 10},
			timestamps: fullPage,
			truncated:  true,
			wantBefore: Ptr(1100),
		},
		{
			name:       "境界なしで満杯未満のページはカーソルなし",
			window:     Window{MaxCount: 10},
			timestamps: []int64{2000, 1900},
		},
		{
			name:       "beforeありで満杯未満のページはafterのみ",
			window:     Window{Before: Ptr(5000), MaxCount: 10},
			timestamps: []int64{2000, 1900},
			wantAfter:  Ptr(2000),
		},
		{
			name:       "beforeありで満杯のページは両方向",
			window:     Window{Before: Ptr(5000), MaxCount: 10},
			timestamps: fullPage,
			truncated:  true,
			wantBefore: Ptr(1100),
			wantAfter:  Ptr(2000),
		},
		{
			name:       "afterありで満杯未満のページはbeforeのみ",
			window:     Window{After: Ptr(100), MaxCount: 10},
			timestamps: []int64{300, 200},
			wantBefore: Ptr(200),
		},
		{
			name:       "afterありで満杯のページは両方向",
			window:     Window{After: Ptr(100), MaxCount: 2},
			timestamps: []int64{300, 200},
			truncated:  true,
			wantBefore: Ptr(200),
			wantAfter:  Ptr(300),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeCursor(tt.window, tt.timestamps, tt.truncated)
			assertBound(t, "Before", got.Before, tt.wantBefore)
			assertBound(t, "After", got.After, tt.wantAfter)
		})
	}
}

func TestCursor_IsEmpty(t *testing.T) {
	if !(Cursor{}).IsEmpty() {
		t.Error("ゼロ値のCursorは空であるべき")
	}
	if (Cursor{After: Ptr(1)}).IsEmpty() {
		t.Error("Afterを持つCursorは空ではない")
	}
}
