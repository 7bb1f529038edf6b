// 版权所有 2024 AgentCrew Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 HTTP 服务器生命周期：后台启动、阻塞运行与优雅关闭。

serve 命令同时运行两个 Manager：业务 API 与 Prometheus /metrics。
Run 在 ctx 取消（通常由 SIGINT/SIGTERM 触发）或服务异常退出时
按 ShutdownTimeout 优雅关闭。
*/
package server
