package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は同期サービスモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandLogin はメールアドレスとパスワードで認証情報を取得・保存することを示す。
	CommandLogin Command = "login"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "login":
		return CommandLogin
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
