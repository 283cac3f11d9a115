/*
answerflow 是 AnswerFlow 服务的命令行入口。

子命令:

	serve     启动 HTTP 服务（问答 API + Prometheus 指标端口）
	version   显示版本信息
	health    对运行中的服务执行健康检查

serve 按 配置文件 → 环境变量 的顺序加载配置，构建 LightRAG 检索、
OpenAI 兼容补全与 Tavily 搜索客户端，装配问答管线并挂载指标观察者，
随后在两个端口上分别暴露业务 API 与 /metrics。收到 SIGINT/SIGTERM
后按 限流器 → 热重载 → HTTP → 指标 → 存档 的顺序优雅退出。
*/
package main
