// 版权所有 2024 AgentCrew Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 plugins 提供聊天会话可调用的内置函数，以工具形式注册到 tools.ToolRegistry。

# 插件

  - time：current_time、get_date、get_year、get_month、get_day_of_week
  - geocoding：get_location，经 geocode.maps.co 解析坐标，结果可写入 Redis 缓存
  - weather：get_weather_forecast，调用 open-meteo，最多 16 天
  - forecast：get_forecast_for_location，组合上述三者并解析
    "today"、"tomorrow"、天数、星期名与 "next <星期>"
  - handbook：query_handbook，查询向量 + Azure AI Search 混合检索
  - image：generate_image，生成图像并保存到 <image_dir>/generated_image.png

上游失败以面向模型的文本返回（如 "Error fetching forecast weather: ..."），
参数无效则返回 error，由执行器转成工具错误结果。HTTP 调用对 429/5xx 做有限重试。
*/
package plugins
