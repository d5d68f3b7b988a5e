// Package server は、境界チャンネルをHTTPで公開します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - チャンネル呼び出し (POST /api/channels/:channel/:method) の振り分け
//   - 状態表示とPrometheusメトリクスの配信
//
// 仕様:
//   - ルーティングはginを使用し、ハンドラは api/openapi.yaml から生成した ServerInterface を実装する
//   - リクエストはkin-openapiでAPI定義と照合し、合わないものは400を返す
//   - チャンネル名の "/" はURLエンコードして渡す
//   - 結果は {"result": bool}。未知のチャンネルは404、未知のメソッドは501
//   - グレースフルシャットダウンに対応
package server
