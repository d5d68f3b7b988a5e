// Package camera はカメラデバイスと認可状態の問い合わせを担う
//
// # 責務
// - デフォルト映像キャプチャデバイスの検出（V4L2）
// - プラットフォームの認可状態の読み取り
// - デバイス設定ロックの取得と自動フォーカス・露出・ホワイトバランスの設定
//
// # 仕様
//   - Probe は状態を持たない。呼び出しごとにデバイスと認可状態を問い合わせる
//   - デバイスが無いことはエラーではなく (nil, false) で表す
//   - 未知の認可状態は StatusUnknown に変換し、拒否として扱う
//   - ConfigLock は flock によるデバイス単位の排他ロックで、Unlock は冪等
//
// # 前提要件
//   - v4l-utils: カメラ名とフォーマットの取得に使用（無くても検出は動く）
//   - videoグループへの参加: GroupAuthorizer を使う場合のデバイスアクセス権限
package camera
